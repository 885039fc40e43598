// Package topology builds the declarative description of the multi-stream
// GStreamer pipeline.
//
// Construction (Build) produces typed stage records only; Launch serializes
// them to gst-launch syntax for the execution engine. Nothing here touches
// GStreamer or performs I/O.
package topology

import (
	"fmt"
	"strings"
)

// Param is one key=value property of a stage. Order is preserved.
type Param struct {
	Key   string
	Value string
}

// Stage describes one pipeline element.
type Stage struct {
	// Kind is the element factory name, or the media type for caps filters.
	Kind   string
	Name   string
	Params []Param
	// Caps marks a caps filter (rendered "kind,key=value,...").
	Caps bool
}

// Param returns the value of key and whether it is set.
func (s Stage) Param(key string) (string, bool) {
	for _, p := range s.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Chain is a linear run of stages. From and To reference named stages
// (branch points and joins) elsewhere in the graph.
type Chain struct {
	From   string
	Stages []Stage
	To     string
}

// Stream is the self-contained sub-graph of one source.
type Stream struct {
	Config StreamConfig
	Chains []Chain
	// ReportSink is the name of the appsink delivering buffers for reporting.
	ReportSink string
}

// StageCount returns the number of stages in the stream's sub-graph.
func (s Stream) StageCount() int {
	n := 0
	for _, c := range s.Chains {
		n += len(c.Stages)
	}
	return n
}

// Stages returns every stage of the stream in chain order.
func (s Stream) Stages() []Stage {
	var out []Stage
	for _, c := range s.Chains {
		out = append(out, c.Stages...)
	}
	return out
}

// Graph is the full pipeline description for all streams.
type Graph struct {
	Streams []Stream
}

// StageCount returns the total number of stages.
func (g *Graph) StageCount() int {
	n := 0
	for _, s := range g.Streams {
		n += s.StageCount()
	}
	return n
}

// Validate checks that stage names are unique and that every branch or join
// reference resolves to a named stage in the graph.
func (g *Graph) Validate() error {
	names := make(map[string]struct{})
	for _, s := range g.Streams {
		for _, st := range s.Stages() {
			if st.Kind == "" {
				return fmt.Errorf("topology: stream %d: stage without kind", s.Config.Index)
			}
			if st.Name == "" {
				continue
			}
			if _, dup := names[st.Name]; dup {
				return fmt.Errorf("topology: duplicate stage name %q", st.Name)
			}
			names[st.Name] = struct{}{}
		}
	}

	for _, s := range g.Streams {
		for _, c := range s.Chains {
			for _, ref := range []string{c.From, c.To} {
				if ref == "" {
					continue
				}
				if _, ok := names[ref]; !ok {
					return fmt.Errorf("topology: stream %d: unresolved branch reference %q", s.Config.Index, ref)
				}
			}
			if c.From == "" && len(c.Stages) == 0 {
				return fmt.Errorf("topology: stream %d: empty chain", s.Config.Index)
			}
		}
		if s.ReportSink != "" {
			if _, ok := names[s.ReportSink]; !ok {
				return fmt.Errorf("topology: stream %d: report sink %q not in graph", s.Config.Index, s.ReportSink)
			}
		}
	}
	return nil
}

// Launch serializes the graph in gst-launch syntax.
func (g *Graph) Launch() string {
	var chains []string
	for _, s := range g.Streams {
		for _, c := range s.Chains {
			chains = append(chains, c.launch())
		}
	}
	return strings.Join(chains, " ")
}

func (c Chain) launch() string {
	parts := make([]string, 0, len(c.Stages)+2)
	if c.From != "" {
		parts = append(parts, c.From+".")
	}
	for _, st := range c.Stages {
		parts = append(parts, st.launch())
	}
	if c.To != "" {
		parts = append(parts, c.To+".")
	}
	return strings.Join(parts, " ! ")
}

func (s Stage) launch() string {
	var b strings.Builder
	b.WriteString(s.Kind)
	if s.Caps {
		for _, p := range s.Params {
			b.WriteString(",")
			b.WriteString(p.Key)
			b.WriteString("=")
			b.WriteString(p.Value)
		}
		return b.String()
	}
	if s.Name != "" {
		b.WriteString(" name=")
		b.WriteString(s.Name)
	}
	for _, p := range s.Params {
		b.WriteString(" ")
		b.WriteString(p.Key)
		b.WriteString("=")
		b.WriteString(quote(p.Value))
	}
	return b.String()
}

// quote wraps values that would otherwise split the description.
func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t!\"") {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}
