package prof

import (
	"context"
	"strings"
	"testing"

	"github.com/keithlinneman/edgesite/internal/log"
)

func TestStart_Disabled(t *testing.T) {
	stop, err := Start(context.Background(), Options{
		Enabled:  false,
		TenantID: "tenant",
		Tags:     map[string]string{"k": "v"},
	})
	if err != nil {
		t.Fatalf("disabled should never error, got: %v", err)
	}
	if stop == nil {
		t.Fatal("stop func is nil")
	}
	stop()
	stop()
}

func TestStart_Enabled_EmptyServerAddress(t *testing.T) {
	ctx := log.WithContext(context.Background(), log.Nop())
	stop, err := Start(ctx, Options{Enabled: true, AppName: "edgesite.preview"})
	if err == nil || !strings.Contains(err.Error(), "invalid server address") {
		t.Fatalf("err = %v, want invalid server address", err)
	}
	if stop == nil {
		t.Fatal("stop must be non-nil even on error")
	}
	stop()
}

func TestStart_Enabled_UnreachableServer(t *testing.T) {
	// pyroscope may connect lazily, so only the stop contract is asserted
	stop, _ := Start(context.Background(), Options{
		Enabled:       true,
		ServerAddress: "http://localhost:0/nonexistent",
		AppName:       "edgesite.preview",
	})
	if stop == nil {
		t.Fatal("stop func should always be non-nil")
	}
	stop()
	stop()
}
