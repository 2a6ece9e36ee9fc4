package chapters

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	metadataHeader = ";FFMETADATA1"
	// All START/END values are integer milliseconds.
	metadataTimebase = "1/1000"
)

// Resolve returns a copy of chapters where every chapter ends where the next
// one starts. The last chapter is left open-ended. Ordering is not checked;
// see Policy for that.
func Resolve(chapters []Chapter) []Chapter {
	resolved := make([]Chapter, len(chapters))
	for i, ch := range chapters {
		resolved[i] = Chapter{Title: ch.Title, Start: ch.Start}
		if i < len(chapters)-1 {
			end := chapters[i+1].Start
			resolved[i].End = &end
		}
	}
	return resolved
}

// BuildMetadata renders chapters as an FFMETADATA1 document.
func BuildMetadata(chapters []Chapter) string {
	var sb strings.Builder
	// strings.Builder never returns a write error.
	_ = WriteMetadata(&sb, chapters)
	return sb.String()
}

// WriteMetadata writes the FFMETADATA1 document for chapters to w. End times
// are inferred with Resolve.
func WriteMetadata(w io.Writer, chapters []Chapter) error {
	if _, err := io.WriteString(w, metadataHeader+"\n"); err != nil {
		return err
	}

	for _, ch := range Resolve(chapters) {
		var sb strings.Builder
		sb.WriteString("[CHAPTER]\n")
		sb.WriteString("TIMEBASE=" + metadataTimebase + "\n")
		fmt.Fprintf(&sb, "START=%d\n", Millis(ch.Start))
		if ch.End != nil {
			fmt.Fprintf(&sb, "END=%d\n", Millis(*ch.End))
		}
		sb.WriteString("title=" + EscapeValue(ch.Title) + "\n\n")

		if _, err := io.WriteString(w, sb.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteMetadataFile writes the FFMETADATA1 document to path, replacing any
// existing file.
func WriteMetadataFile(path string, chapters []Chapter) error {
	f, err := os.Create(path) //#nosec G304 -- path is inside a scratch workspace
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	if err := WriteMetadata(f, chapters); err != nil {
		_ = f.Close()
		return fmt.Errorf("write metadata file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close metadata file: %w", err)
	}
	return nil
}

// metadataEscaper backslash-escapes the characters FFMETADATA1 reserves in
// values. Carriage returns are dropped so CRLF titles become single escaped
// newlines.
var metadataEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	";", `\;`,
	"#", `\#`,
	"\r", "",
	"\n", "\\\n",
)

// EscapeValue escapes a metadata value so it cannot break the key/value
// structure of the document.
func EscapeValue(s string) string {
	return metadataEscaper.Replace(s)
}
