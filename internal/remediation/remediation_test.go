package remediation

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestForOS(t *testing.T) {
	cases := map[string]string{
		"windows": "windows",
		"linux":   "linux",
		"darwin":  "darwin",
		"plan9":   "unsupported",
	}
	for goos, want := range cases {
		if got := ForOS(goos).Name(); got != want {
			t.Errorf("ForOS(%q): expected %s, got %s", goos, want, got)
		}
	}
}

func TestIsSuspect(t *testing.T) {
	for _, name := range []string{"njrat", "Remcos.exe", "ASYNCRAT.EXE"} {
		if !isSuspect(name) {
			t.Errorf("Expected %s to be a suspect", name)
		}
	}
	for _, name := range []string{"explorer.exe", "njrat-cleaner", ""} {
		if isSuspect(name) {
			t.Errorf("Expected %s not to be a suspect", name)
		}
	}
}

func TestKillSuspects(t *testing.T) {
	var killed []int32
	mk := func(pid int32, name string) proc {
		return proc{pid: pid, name: name, kill: func(context.Context) error {
			killed = append(killed, pid)
			return nil
		}}
	}
	list := func(context.Context) ([]proc, error) {
		return []proc{
			mk(10, "bash"),
			mk(11, "Quasar.exe"),
			mk(int32(os.Getpid()), "njrat"),
			{pid: 12, name: "remcos.exe", kill: func(context.Context) error { return errors.New("denied") }},
		}, nil
	}

	actions, err := killSuspects(context.Background(), list)
	if err != nil {
		t.Fatal(err)
	}
	if len(killed) != 1 || killed[0] != 11 {
		t.Errorf("Expected only pid 11 killed, got %v", killed)
	}
	if len(actions) != 1 {
		t.Errorf("Expected 1 action, got %v", actions)
	}
}

const regOutput = "\r\nHKEY_CURRENT_USER\\Software\\Microsoft\\Windows\\CurrentVersion\\Run\r\n" +
	"    OneDrive    REG_SZ    \"C:\\Program Files\\OneDrive\\OneDrive.exe\" /background\r\n" +
	"    svc    REG_SZ    C:\\Users\\u\\AppData\\Roaming\\njrat.exe\r\n" +
	"    Helper    REG_EXPAND_SZ    %APPDATA%\\Remcos\\remcos.exe -start\r\n\r\n"

func TestSuspectRunValues(t *testing.T) {
	got := suspectRunValues(regOutput)
	if len(got) != 2 || got[0] != "svc" || got[1] != "Helper" {
		t.Errorf("Expected [svc Helper], got %v", got)
	}
}

func TestWindowsPurgePersistence(t *testing.T) {
	var calls []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		call := name + " " + strings.Join(args, " ")
		calls = append(calls, call)
		switch {
		case name == "reg" && args[0] == "query" && strings.HasPrefix(args[1], "HKCU") && strings.HasSuffix(args[1], `\Run`):
			return []byte(regOutput), nil
		case name == "reg" && args[0] == "query":
			return nil, errors.New("key not found")
		case name == "schtasks" && args[2] != "Updater":
			return nil, errors.New("task not found")
		}
		return nil, nil
	}
	w := &windowsRemediation{procs: func(context.Context) ([]proc, error) { return nil, nil }, run: run}

	actions, err := w.Recover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 3 {
		t.Fatalf("Expected 2 run values and 1 task removed, got %v", actions)
	}
	var deletes int
	for _, c := range calls {
		if strings.HasPrefix(c, "reg delete") {
			deletes++
			if strings.Contains(c, "OneDrive") {
				t.Errorf("Expected benign value to be left alone, got %q", c)
			}
		}
	}
	if deletes != 2 {
		t.Errorf("Expected 2 reg delete calls, got %d", deletes)
	}
}

func TestNoopRemediation(t *testing.T) {
	actions, err := ForOS("plan9").Recover(context.Background())
	if err != nil || len(actions) != 0 {
		t.Errorf("Expected no-op, got %v, %v", actions, err)
	}
}
