// Package remediation cleans up after known remote-access trojans: it kills
// their processes and removes the persistence they install. The
// implementation is picked at runtime from the operating system name, and
// platforms without support get one that does nothing.
package remediation

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"wib-shield/pkg/logging"

	"github.com/shirou/gopsutil/v3/process"
)

// SuspectProcesses are the image names, without extension, of the RAT
// families the engine has signatures for.
var SuspectProcesses = []string{
	"njrat", "quasar", "remcos", "asyncrat", "warzone", "nanocore", "darkcomet", "blackshades",
}

// runKeys are the autostart keys checked for values that launch a suspect.
var runKeys = []string{
	`HKCU\Software\Microsoft\Windows\CurrentVersion\Run`,
	`HKLM\Software\Microsoft\Windows\CurrentVersion\Run`,
	`HKCU\Software\Microsoft\Windows\CurrentVersion\RunOnce`,
	`HKLM\Software\Microsoft\Windows\CurrentVersion\RunOnce`,
}

// suspectTasks are scheduled-task names commonly registered by RAT droppers.
var suspectTasks = []string{"Updater", "WindowsUpdater", "AdobeUpdate", "SystemCheck", "ChromeUpdate"}

// PlatformRemediation is implemented once per operating system. Every method
// returns a description of each action it took.
type PlatformRemediation interface {
	Name() string
	KillKnownProcesses(ctx context.Context) ([]string, error)
	PurgePersistence(ctx context.Context) ([]string, error)
	Recover(ctx context.Context) ([]string, error)
}

// ForOS returns the implementation for goos, usually runtime.GOOS.
func ForOS(goos string) PlatformRemediation {
	switch goos {
	case "windows":
		return &windowsRemediation{procs: systemProcesses, run: runCommand}
	case "linux", "darwin":
		return &unixRemediation{name: goos, procs: systemProcesses}
	default:
		return noopRemediation{}
	}
}

type proc struct {
	pid  int32
	name string
	kill func(context.Context) error
}

type processLister func(ctx context.Context) ([]proc, error)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func systemProcesses(ctx context.Context) ([]proc, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]proc, 0, len(ps))
	for _, p := range ps {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited or access denied
			continue
		}
		out = append(out, proc{pid: p.Pid, name: name, kill: p.KillWithContext})
	}
	return out, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// isSuspect matches an image name such as "Remcos.exe" against the suspect list.
func isSuspect(image string) bool {
	base := strings.TrimSuffix(strings.ToLower(image), ".exe")
	for _, s := range SuspectProcesses {
		if base == s {
			return true
		}
	}
	return false
}

func killSuspects(ctx context.Context, list processLister) ([]string, error) {
	procs, err := list(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var actions []string
	for _, p := range procs {
		if p.pid == self || !isSuspect(p.name) {
			continue
		}
		if err := p.kill(ctx); err != nil {
			logging.Warnf("failed to kill %s (pid %d): %v", p.name, p.pid, err)
			continue
		}
		logging.Infof("killed %s (pid %d)", p.name, p.pid)
		actions = append(actions, "killed "+p.name)
	}
	return actions, nil
}

type windowsRemediation struct {
	procs processLister
	run   commandRunner
}

func (w *windowsRemediation) Name() string { return "windows" }

func (w *windowsRemediation) KillKnownProcesses(ctx context.Context) ([]string, error) {
	return killSuspects(ctx, w.procs)
}

// PurgePersistence deletes Run-key values whose command line names a suspect
// and removes the scheduled tasks droppers are known to register.
func (w *windowsRemediation) PurgePersistence(ctx context.Context) ([]string, error) {
	var actions []string
	for _, key := range runKeys {
		out, err := w.run(ctx, "reg", "query", key)
		if err != nil {
			logging.Debugf("reg query %s: %v", key, err)
			continue
		}
		for _, value := range suspectRunValues(string(out)) {
			if _, err := w.run(ctx, "reg", "delete", key, "/v", value, "/f"); err != nil {
				logging.Warnf("failed to delete %s\\%s: %v", key, value, err)
				continue
			}
			actions = append(actions, "deleted run value "+key+`\`+value)
		}
	}
	for _, task := range suspectTasks {
		if _, err := w.run(ctx, "schtasks", "/Delete", "/TN", task, "/F"); err != nil {
			// most of these do not exist on a given machine
			logging.Debugf("schtasks delete %s: %v", task, err)
			continue
		}
		actions = append(actions, "deleted scheduled task "+task)
	}
	return actions, ctx.Err()
}

func (w *windowsRemediation) Recover(ctx context.Context) ([]string, error) {
	return recoverWith(ctx, w)
}

// suspectRunValues parses `reg query` output and returns the names of values
// whose data mentions a suspect image. Value lines look like
// "    Name    REG_SZ    C:\path\to\thing.exe".
func suspectRunValues(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "    ") {
			continue
		}
		fields := strings.SplitN(strings.TrimSpace(line), "    ", 3)
		if len(fields) < 3 || !strings.HasPrefix(fields[1], "REG_") {
			continue
		}
		data := strings.ToLower(fields[2])
		for _, s := range SuspectProcesses {
			if strings.Contains(data, s) {
				names = append(names, fields[0])
				break
			}
		}
	}
	return names
}

type unixRemediation struct {
	name  string
	procs processLister
}

func (u *unixRemediation) Name() string { return u.name }

func (u *unixRemediation) KillKnownProcesses(ctx context.Context) ([]string, error) {
	return killSuspects(ctx, u.procs)
}

func (u *unixRemediation) PurgePersistence(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (u *unixRemediation) Recover(ctx context.Context) ([]string, error) {
	return recoverWith(ctx, u)
}

type noopRemediation struct{}

func (noopRemediation) Name() string { return "unsupported" }

func (noopRemediation) KillKnownProcesses(context.Context) ([]string, error) { return nil, nil }

func (noopRemediation) PurgePersistence(context.Context) ([]string, error) { return nil, nil }

func (noopRemediation) Recover(context.Context) ([]string, error) { return nil, nil }

func recoverWith(ctx context.Context, r PlatformRemediation) ([]string, error) {
	killed, err := r.KillKnownProcesses(ctx)
	if err != nil {
		return killed, err
	}
	purged, err := r.PurgePersistence(ctx)
	return append(killed, purged...), err
}
