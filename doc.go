/*
Package cadence is a flow orchestration engine for task-oriented dialogue
systems. It keeps multi-turn conversations coherent: flows pause and resume
around interruptions, slot corrections rewind just far enough, and every turn
ends at a well-defined checkpoint that can be persisted and picked up later,
on any worker.

# Concept

Cadence separates the conversation into three explicit pieces: a stack of flow
instances (what tasks are in progress), per-instance slot values (what the
user has said so far), and a conversation state machine (what the engine is
doing right now). All of it lives in one serializable DialogueState, so the
engine itself holds nothing between turns. The Understanding collaborator
(typically an LLM adapter) interprets each message into a classification; the
engine alone decides what that classification does to the stack.

# Key Features

  - Resumable execution: turns that reach an external action suspend with an
    explicit resume token instead of blocking a goroutine.
  - Digression handling: questions, interruptions, and corrections are
    first-class, with bounded retries and bounded stack depth.
  - Hexagonal architecture: stores (memory, file, Redis), flow loaders, and
    understanders are adapters behind small ports.
  - Bounded state: completed flows and the trace are pruned every turn, so a
    thread's checkpoint never grows without limit.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/cadence"
		openaiadapter "github.com/aretw0/cadence/pkg/adapters/openai"
	)

	func main() {
		eng, err := cadence.New("./flows", openaiadapter.New())
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		result, err := eng.Converse(ctx, "thread-1", "I want to book a flight to Lisbon")
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(result.Response)

		if result.Suspension != nil {
			// Execute result.Suspension.Action out of band, then:
			outputs := map[string]any{"booking": "BK-42"}
			result, err = eng.Resume(ctx, "thread-1", result.Suspension.ResumeToken, outputs)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(result.Response)
		}
	}
*/
package cadence
