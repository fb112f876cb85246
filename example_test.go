package chatflow_test

import (
	"context"
	"fmt"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/domain"
)

func ExampleNew() {
	f := chatflow.New()

	res := f.Validate()
	fmt.Println(res.Valid)
	for _, msg := range res.Errors {
		fmt.Println(msg)
	}
	// Output:
	// false
	// Please add at least one Question node to create a valid flow
}

func ExampleFlow_SendMessage() {
	f := chatflow.New()

	q, _ := f.AddNode(domain.KindQuestion, domain.Position{})
	_, _ = f.UpdateNodeData(q.ID, map[string]any{"question": "What is your name?"})

	ctx := context.Background()
	f.Start(ctx)
	f.Step(ctx)
	f.SendMessage(ctx, "Ada")
	f.Step(ctx)

	st := f.Execution()
	fmt.Println(st.Running, len(st.History), st.Context.Variables["user_input"])
	// Output: false 3 Ada
}
