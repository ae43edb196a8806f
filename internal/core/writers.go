package core

import "context"

// ContextWriter is the surface handed to collaborators (chat front-end,
// scenario engine, transcription) that need to push turns into the
// conversation without holding the whole buffer.
type ContextWriter interface {
	Append(msg Message) (Message, error)
}

// MemoryWriter is the surface handed to collaborators that record facts.
type MemoryWriter interface {
	Remember(ctx context.Context, mem Memory) (Memory, error)
}
