package main

import (
	"testing"

	"github.com/daimatz/setip/pkg/setip"
)

func TestPlannedMethod(t *testing.T) {
	sig := "<T:Ljava/lang/Object;>(TT;)TT;"
	plan := setip.MethodName{Name: "identity", Signature: "(Ljava/lang/Object;)Ljava/lang/Object;", GenericSignature: &sig}

	tests := []struct {
		name    string
		flags   methodFlags
		wantErr bool
	}{
		{"no flags", methodFlags{}, false},
		{"same method", methodFlags{method: "identity", desc: plan.Signature, signature: sig}, false},
		{"name only", methodFlags{method: "identity"}, false},
		{"other name", methodFlags{method: "other"}, true},
		{"other descriptor", methodFlags{method: "identity", desc: "()V"}, true},
		{"other signature", methodFlags{signature: "()V"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.flags.planned(plan)
			if (err != nil) != tt.wantErr {
				t.Fatalf("planned: err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Name != plan.Name || got.Signature != plan.Signature {
				t.Errorf("planned: got %s", got)
			}
		})
	}

	noSig := setip.MethodName{Name: "run", Signature: "()V"}
	f := methodFlags{signature: sig}
	if _, err := f.planned(noSig); err == nil {
		t.Error("a signature flag should not match a plan without one")
	}
}
