package admission

import (
	"context"
	"fmt"

	"github.com/wasmgate/wasmgate/pkg/policy"
)

func ExampleController() {
	ctrl := NewController()

	dec := ctrl.Check(context.Background(), "tenant_123", policy.Free)

	fmt.Println(dec.Allowed)
	fmt.Println(dec.RemainingMinute)
	// Output:
	// true
	// 9
}
