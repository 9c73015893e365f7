package sys

import "testing"

func TestInitLoggerSilent(t *testing.T) {
	t.Cleanup(func() { InitLogger(false, false) })

	InitLogger(true, false)
	if !IsSilent {
		t.Fatal("InitLogger(true) left IsSilent unset")
	}
	LogInfo("dropped %d", 1)

	InitLogger(false, false)
	if IsSilent {
		t.Fatal("InitLogger(false) left IsSilent set")
	}
}
