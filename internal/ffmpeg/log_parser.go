package ffmpeg

import (
	"log/slog"
	"strings"
)

// LineParser turns ffmpeg stderr lines into slog levels and messages.
// With -loglevel level+info a line looks like "[error] message" or
// "[flv @ 0x55d1c] [warning] message"; the component prefix is kept.
type LineParser struct {
	scrub *strings.Replacer
}

// NewLineParser returns a parser that rewrites every old/new pair in
// each message before it is logged.
func NewLineParser(oldnew ...string) *LineParser {
	var pairs []string
	for i := 0; i+1 < len(oldnew); i += 2 {
		if oldnew[i] != "" {
			pairs = append(pairs, oldnew[i], oldnew[i+1])
		}
	}
	p := &LineParser{}
	if len(pairs) > 0 {
		p.scrub = strings.NewReplacer(pairs...)
	}
	return p
}

// LineParser returns a parser that masks the publish target of s, so the
// stream key never reaches the logs through ffmpeg's own output.
func (s Spec) LineParser() *LineParser {
	pairs := []string{s.Output.URL, s.Output.Redacted}
	// a bare key is scrubbed only when long enough not to hit ordinary words
	if len(s.Output.key) >= 6 {
		pairs = append(pairs, s.Output.key, s.Output.maskedKey)
	}
	return NewLineParser(pairs...)
}

// Parse classifies line. Unprefixed lines log at info; progress stats
// lines ("frame=... fps=...") drop to debug whatever their prefix.
func (p *LineParser) Parse(line string) (slog.Level, string) {
	line = strings.TrimRight(line, "\r\n ")
	level, msg := splitLevel(line)
	if p.scrub != nil {
		msg = p.scrub.Replace(msg)
	}
	if isStats(msg) {
		return slog.LevelDebug, msg
	}
	return level, msg
}

func splitLevel(line string) (slog.Level, string) {
	if len(line) < 3 || line[0] != '[' {
		return slog.LevelInfo, line
	}
	end := strings.Index(line, "] ")
	if end == -1 {
		return slog.LevelInfo, line
	}
	if level, ok := levelOf(line[1:end]); ok {
		return level, line[end+2:]
	}

	component, rest := line[:end+2], line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if next := strings.Index(rest, "] "); next != -1 {
			if level, ok := levelOf(rest[1:next]); ok {
				return level, component + rest[next+2:]
			}
		}
	}
	return slog.LevelInfo, line
}

func levelOf(name string) (slog.Level, bool) {
	switch name {
	case "quiet", "panic", "fatal", "error":
		return slog.LevelError, true
	case "warning":
		return slog.LevelWarn, true
	case "info":
		return slog.LevelInfo, true
	case "verbose", "debug", "trace":
		return slog.LevelDebug, true
	}
	return 0, false
}

func isStats(msg string) bool {
	return (strings.HasPrefix(msg, "frame=") || strings.HasPrefix(msg, "size=")) &&
		strings.Contains(msg, "time=")
}
