/*
Package runner implements the interactive simulator loop over a flow.Flow.

It is the bridge between the execution interpreter and a user at a terminal
(or a program speaking JSON lines). The runner starts the run, presents every
node as it is entered, reads an answer whenever a Question is active and
otherwise steps the flow forward until an End or a halt.

# Key Components

  - Runner: the loop, with optional persistence through a ports.SessionStore.
  - IOHandler: decouples how prompts are shown and answers are read.
  - TextHandler: interactive CLI usage, optionally rendering markdown.
  - JSONHandler: JSON-lines for headless drivers.

# Usage

	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
		runner.WithStore(store),
		runner.WithSessionID("demo"),
	)

	if err := r.Run(ctx, f); err != nil {
		log.Fatal(err)
	}
*/
package runner
