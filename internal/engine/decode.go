package engine

import (
	"bytes"

	"github.com/h2non/filetype"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// decodeText turns raw file bytes into matchable text. Invalid UTF-8 is
// replaced with U+FFFD rather than rejected, so binaries can be matched too.
// Content starting with a UTF-16 byte order mark is additionally decoded as
// UTF-16 and appended, so a match in either form counts.
func decodeText(content []byte) string {
	text := lossyUTF8(content)
	if alt, ok := decodeUTF16(content); ok {
		return text + "\n" + alt
	}
	return text
}

func lossyUTF8(content []byte) string {
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), content)
	if err != nil {
		return string(content)
	}
	return string(out)
}

// decodeUTF16 decodes content as UTF-16 when it starts with a byte order mark.
func decodeUTF16(content []byte) (string, bool) {
	if !bytes.HasPrefix(content, bomUTF16LE) && !bytes.HasPrefix(content, bomUTF16BE) {
		return "", false
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(dec, content)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// sniffType returns the MIME type of content from its magic bytes, or "".
func sniffType(content []byte) string {
	kind, err := filetype.Match(content)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.MIME.Value
}
