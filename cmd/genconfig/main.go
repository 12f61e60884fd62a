// Package main implements genconfig, which renders config.default.toml from
// config.ExampleConfig() annotated with config.ConfigDocs.
//
// It runs through the go:generate directive in internal/config/config.go.
// With -check it only reports whether the checked-in file is current.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"tools.zach/dev/embycord/internal/config"
)

func main() {
	// go generate runs from internal/config/, two levels below the root
	// package that embeds the file.
	outPath := flag.String("out", "../../config.default.toml", "Output path")
	check := flag.Bool("check", false, "Exit non-zero if the output file is stale instead of writing it")
	flag.Parse()

	result, err := generate(config.ExampleConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *check {
		current, err := os.ReadFile(*outPath)
		if err != nil || !bytes.Equal(current, []byte(result)) {
			fmt.Fprintf(os.Stderr, "%s is stale; run go generate ./internal/config\n", *outPath)
			os.Exit(1)
		}
		return
	}

	if err := os.WriteFile(*outPath, []byte(result), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *outPath)
}

// generate encodes cfg and annotates every section and key.
func generate(cfg *config.Config) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	w := newDocWriter(config.ConfigDocs)
	w.banner("Embycord Configuration")
	for _, line := range strings.Split(raw.String(), "\n") {
		w.line(strings.TrimSpace(line))
	}
	w.flushOmitted()
	return w.String(), nil
}

// ///////////////////////////////////////////////
// docWriter
// ///////////////////////////////////////////////

// docWriter rewrites encoder output line by line, adding comments from docs.
type docWriter struct {
	docs    map[string]config.FieldDoc
	out     []string
	section []string
	// emitted tracks dotted keys already written, so documented keys the
	// encoder omitted can be added as comments.
	emitted map[string]bool
}

func newDocWriter(docs map[string]config.FieldDoc) *docWriter {
	return &docWriter{docs: docs, emitted: make(map[string]bool)}
}

func (w *docWriter) banner(title string) {
	w.out = append(w.out,
		"# ///////////////////////////////////////////////",
		"# "+title,
		"# ///////////////////////////////////////////////",
		"",
	)
}

// comment writes text as "# " lines.
func (w *docWriter) comment(text string) {
	if text == "" {
		return
	}
	for _, cl := range strings.Split(text, "\n") {
		w.out = append(w.out, "# "+cl)
	}
}

// line handles one trimmed line of encoder output. Blank lines are dropped;
// spacing is managed here.
func (w *docWriter) line(trimmed string) {
	switch {
	case trimmed == "":
		return

	case strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[["):
		w.flushOmitted()
		name := strings.Trim(trimmed, "[] ")
		w.section = parseSectionPath(name)
		w.out = append(w.out, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
		w.comment(w.docs[name].Comment)
		w.out = append(w.out, trimmed)

	case !strings.Contains(trimmed, "=") || strings.HasPrefix(trimmed, "#"):
		w.out = append(w.out, trimmed)

	default:
		key := strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		path := w.path(key)
		w.emitted[path] = true
		doc, ok := w.docs[path]
		if !ok {
			w.out = append(w.out, trimmed)
			return
		}
		w.comment(doc.Comment)
		w.out = append(w.out, trimmed)
		for _, alt := range doc.Alternatives {
			w.out = append(w.out, "# "+alt)
		}
	}
}

func (w *docWriter) path(key string) string {
	if len(w.section) == 0 {
		return key
	}
	return strings.Join(w.section, ".") + "." + key
}

// flushOmitted writes documented keys of the current section that the
// encoder left out (omitempty zero values), commented out and sorted.
func (w *docWriter) flushOmitted() {
	if len(w.section) == 0 {
		return
	}
	prefix := strings.Join(w.section, ".") + "."

	var omitted []string
	for path := range w.docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || w.emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := w.docs[path]
		w.out = append(w.out, "")
		w.comment(doc.Comment)
		for _, alt := range doc.Alternatives {
			w.out = append(w.out, "# "+alt)
		}
		w.emitted[path] = true
	}
}

// String returns the document with a single trailing newline.
func (w *docWriter) String() string {
	return strings.TrimRight(strings.Join(w.out, "\n"), "\n") + "\n"
}

// parseSectionPath splits a dotted section header ("emby.cache") into its
// segments.
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName capitalizes the last segment of a section header for the
// separator comment: "emby.cache" yields "Cache".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
