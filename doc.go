/*
Package chatflow is the core of a visual chatbot flow editor.

A flow is a directed graph of typed nodes (Start, Question, Answer, Condition,
API Call, AI Prompt, Fallback, Delay, Human Handoff and a terminal CTA) with a
single Container that visually scopes the Questions. The package keeps the
flow consistent while it is edited, checks it for structural problems and
simulates a conversation over it.

# Concept

Three cooperating pieces work on the same graph:

  - The containment rules keep Questions inside the Container, keep the CTA
    and other nodes outside it and size the Container to its Questions. They
    run after every edit and on import.
  - The structural validator reports what stops a flow from being publishable:
    missing or duplicated Start/Container/CTA, disconnected Questions, dead
    ends, loops and incomplete Condition branches.
  - The interpreter walks the graph one node at a time, storing user messages
    in the run context and routing Condition nodes by their true/false exits.

Everything is synchronous and owned by a Flow value; concurrent access is
serialized by pkg/session.

# Usage

	f := chatflow.New()

	q, _ := f.AddNode(domain.KindQuestion, domain.Position{})
	f.UpdateNodeData(q.ID, map[string]any{"question": "What is your name?"})

	if res := f.Validate(); !res.Valid {
		for _, msg := range res.Errors {
			fmt.Println(msg)
		}
	}

	ctx := context.Background()
	f.Start(ctx)
	f.Step(ctx)                // Start -> Question
	f.SendMessage(ctx, "Ada")  // answer, then Question -> CTA
	f.Step(ctx)                // CTA finishes the run
*/
package chatflow
