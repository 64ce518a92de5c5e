package agent

import "github.com/MrWong99/leadscore/pkg/provider/llm"

// Conversation is the append-only message history of one run. It is not safe
// for concurrent use; a run owns its conversation exclusively.
type Conversation struct {
	msgs []llm.Message
}

// NewConversation starts a conversation with copies of seed.
func NewConversation(seed ...llm.Message) *Conversation {
	c := &Conversation{msgs: make([]llm.Message, 0, len(seed)+4)}
	c.Append(seed...)
	return c
}

// Append adds msgs to the end of the history.
func (c *Conversation) Append(msgs ...llm.Message) {
	for _, m := range msgs {
		c.msgs = append(c.msgs, m.Clone())
	}
}

// Messages returns a copy of the history. Mutating the result does not
// affect the conversation.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the latest message and false when the conversation is empty.
func (c *Conversation) Last() (llm.Message, bool) {
	if len(c.msgs) == 0 {
		return llm.Message{}, false
	}
	return c.msgs[len(c.msgs)-1].Clone(), true
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }
