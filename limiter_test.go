package windowlimit

import (
	"testing"
	"time"
)

func TestFormatKey_Default(t *testing.T) {
	o := defaultOptions()
	got := o.FormatKey("10.0.0.1")
	want := "ratelimit:10.0.0.1"
	if got != want {
		t.Errorf("FormatKey default: got %q, want %q", got, want)
	}
}

func TestFormatKey_CustomPrefix(t *testing.T) {
	o := applyOptions([]Option{WithKeyPrefix("myapp")})
	got := o.FormatKey("api-key-abc")
	want := "myapp:api-key-abc"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatKey_EmptyPrefix(t *testing.T) {
	o := applyOptions([]Option{WithKeyPrefix("")})
	if got := o.FormatKey("A"); got != "A" {
		t.Errorf("empty prefix should store verbatim, got %q", got)
	}
}

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.Window != 60*time.Second {
		t.Errorf("window: got %s", o.Window)
	}
	if o.Max != 100 {
		t.Errorf("max: got %d", o.Max)
	}
	if o.Message != "Too many requests, please try again later." {
		t.Errorf("message: got %q", o.Message)
	}
	if o.Logger == nil {
		t.Error("logger must default to a no-op logger")
	}
}

func TestWithMessage_EmptyKeepsDefault(t *testing.T) {
	o := applyOptions([]Option{WithMessage("")})
	if o.Message != DefaultMessage {
		t.Errorf("got %q", o.Message)
	}
}

func TestWithObserver_IgnoresNil(t *testing.T) {
	o := applyOptions([]Option{WithObserver(nil)})
	if len(o.Observers) != 0 {
		t.Errorf("nil observer should be dropped, got %d", len(o.Observers))
	}
}
