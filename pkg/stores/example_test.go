package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/wareform/wareform/pkg/engine"
	"github.com/wareform/wareform/pkg/stores"
)

// ExampleOpen demonstrates recording an apply run in an in-memory ledger.
func ExampleOpen() {
	ctx := context.Background()
	ledger, err := stores.Open(ctx, stores.Config{Path: stores.MemoryPath})
	if err != nil {
		log.Fatal(err)
	}
	defer ledger.Close()

	run := &stores.Run{Account: "acme", StatePath: "state/state.json"}
	if err := ledger.StartRun(ctx, run); err != nil {
		log.Fatal(err)
	}

	plan := []engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindRole, Key: "ANALYST", Details: engine.Details{"name": "ANALYST"}},
	}
	if err := ledger.RecordActions(ctx, run.ID, plan, []string{"CREATE ROLE ANALYST;"}); err != nil {
		log.Fatal(err)
	}
	if err := ledger.CompleteRun(ctx, run.ID, "sha256:00"); err != nil {
		log.Fatal(err)
	}

	got, err := ledger.GetRun(ctx, run.ID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(got.Status, got.ActionCount)
	// Output: completed 1
}
