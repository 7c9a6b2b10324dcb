package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Run hooks
	r := NoopRunHooks{}
	r.OnRepoAnalyzed(ctx, "acme/shop", false)
	r.OnSnapshotBuilt(ctx, 42, time.Second)
	r.OnRunComplete(ctx, "run-1", 10, 1, time.Minute)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "advisory")
	c.OnCacheMiss(ctx, "hosting")
	c.OnCacheSet(ctx, "tracker", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "api.osv.dev", "/v1/querybatch")
	h.OnResponse(ctx, "POST", "api.osv.dev", "/v1/querybatch", 200, time.Second)
	h.OnError(ctx, "POST", "api.osv.dev", "/v1/querybatch", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Run().(NoopRunHooks); !ok {
		t.Error("Run() should return NoopRunHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	// Set custom hooks
	customRun := &testRunHooks{}
	SetRunHooks(customRun)
	if Run() != customRun {
		t.Error("SetRunHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Run().(NoopRunHooks); !ok {
		t.Error("Reset() should restore NoopRunHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testRunHooks{}
	SetRunHooks(custom)

	// Setting nil should be ignored
	SetRunHooks(nil)

	if Run() != custom {
		t.Error("SetRunHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testRunHooks struct{ NoopRunHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
