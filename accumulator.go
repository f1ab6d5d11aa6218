package llmbridge

import (
	"maps"
	"time"
)

// Accumulator folds streamed chunks of one choice into a complete message.
// Adapters emit deltas only; callers that want the whole reply feed every
// chunk to Add. The zero value is ready to use. It is not safe for concurrent use.
type Accumulator struct {
	Index int // choice to follow

	id           string
	model        string
	msg          UIMessage
	finishReason string
	usage        *TokenUsage
	now          func() time.Time
}

// Add folds one chunk into the message.
func (a *Accumulator) Add(chunk MessageChunk) {
	if chunk.ID != "" {
		a.id = chunk.ID
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		if a.usage != nil {
			u = a.usage.Merge(u)
		}
		a.usage = &u
	}
	for _, c := range chunk.Choices {
		if c.Index != a.Index {
			continue
		}
		if c.FinishReason != "" {
			a.finishReason = c.FinishReason
		}
		m := c.Delta
		if m == nil {
			m = c.Message
		}
		if m == nil {
			continue
		}
		if a.msg.Role == "" {
			a.msg.Role = m.Role
		}
		for _, p := range m.Parts {
			a.addPart(p)
		}
		a.msg.Annotations = append(a.msg.Annotations, m.Annotations...)
	}
}

func (a *Accumulator) addPart(p UIMessagePart) {
	last := len(a.msg.Parts) - 1
	var prev UIMessagePart
	if last >= 0 {
		prev = a.msg.Parts[last]
	}

	switch p := p.(type) {
	case TextPart:
		if t, ok := prev.(TextPart); ok {
			t.Text += p.Text
			t.Metadata = mergeMeta(t.Metadata, p.Metadata)
			a.msg.Parts[last] = t
			return
		}
	case ReasoningPart:
		if r, ok := prev.(ReasoningPart); ok {
			r.Reasoning += p.Reasoning
			r.Metadata = mergeMeta(r.Metadata, p.Metadata)
			a.msg.Parts[last] = r
			return
		}
	case ToolCallPart:
		if p.ToolCallID == "" && p.ToolName == "" {
			for i := last; i >= 0; i-- {
				if tc, ok := a.msg.Parts[i].(ToolCallPart); ok {
					tc.Arguments += p.Arguments
					tc.Metadata = mergeMeta(tc.Metadata, p.Metadata)
					a.msg.Parts[i] = tc
					return
				}
			}
		}
	}

	if r, ok := prev.(ReasoningPart); ok && r.FinishedAt.IsZero() {
		r.FinishedAt = a.clock()
		a.msg.Parts[last] = r
	}
	a.msg.Parts = append(a.msg.Parts, p)
}

func (a *Accumulator) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// Message returns the message built so far.
func (a *Accumulator) Message() UIMessage { return a.msg }

// Chunk returns the accumulated reply in the shape of a blocking response.
func (a *Accumulator) Chunk() MessageChunk {
	msg := a.msg
	return MessageChunk{
		ID:    a.id,
		Model: a.model,
		Choices: []UIMessageChoice{{
			Index:        a.Index,
			Message:      &msg,
			FinishReason: a.finishReason,
		}},
		Usage: a.usage,
	}
}

func mergeMeta(dst, src Metadata) Metadata {
	if len(src) == 0 {
		return dst
	}
	out := maps.Clone(dst)
	if out == nil {
		out = Metadata{}
	}
	maps.Copy(out, src)
	return out
}
