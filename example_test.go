package drover_test

import (
	"context"
	"fmt"
	"log"

	"github.com/droverlabs/drover"
)

// The zero-config engine persists in memory and answers with the built-in
// rule policy and executors.
func ExampleNew() {
	engine, err := drover.New()
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	result, err := engine.Handle(context.Background(), drover.TurnRequest{
		Message: "Load the sales data",
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Outcome)
	// Output: responding
}

// Follow-up messages reuse the conversation id from the first turn.
func ExampleEngine_Handle_multiTurn() {
	engine, err := drover.New()
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	first, err := engine.Handle(ctx, drover.TurnRequest{
		Message: "Load the sales data",
	})
	if err != nil {
		log.Fatal(err)
	}

	second, err := engine.Handle(ctx, drover.TurnRequest{
		ConversationID: first.ConversationID,
		Message:        "Now analyze the numbers",
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(first.Outcome, second.Outcome)
	// Output: responding responding
}
