package bus

import "testing"

func TestDecodeIntentRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown action", "frobnicate:1"},
		{"missing id", "task_done"},
		{"non-numeric id", "task_done:abc"},
		{"bad mode", "switch_mode:turbo"},
		{"pref without value", "set_pref:verbosity"},
		{"empty pref key", "set_pref:=high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if in, err := DecodeIntent(tt.data); err == nil {
				t.Errorf("DecodeIntent(%q) = %#v, want error", tt.data, in)
			}
		})
	}
}

// One intent per payload shape: id-carrying, payload-less, mode switch,
// key=value preference.
func TestIntentRoundTrip(t *testing.T) {
	tests := []Intent{
		ReviewDone{TaskID: 42},
		ConfidenceLater{ItemID: 7},
		BatchPick{},
		WhitelistForwardAdd{ChatID: -1001234567890},
		SwitchMode{Mode: "fallback"},
		SetPreference{Key: "digest_time", Value: "21:30"},
	}

	for _, in := range tests {
		data, err := EncodeIntent(in)
		if err != nil {
			t.Fatalf("encode %#v: %v", in, err)
		}
		if len(data) > 64 {
			t.Errorf("%q exceeds the Telegram callback data limit", data)
		}
		back, err := DecodeIntent(data)
		if err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		if back != in {
			t.Errorf("round trip %#v -> %q -> %#v", in, data, back)
		}
	}
}
