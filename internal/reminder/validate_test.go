package reminder

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := Configuration{Frequency: FrequencyWeekly, DayOfWeek: 1, TimeOfDay: "09:00", Channels: ChannelSet{ChannelApp}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}

	bad := []Configuration{
		{Frequency: FrequencyWeekly, DayOfWeek: 9, TimeOfDay: "09:00", Channels: ChannelSet{ChannelApp}},
		{Frequency: FrequencyMonthly, DayOfMonth: 32, TimeOfDay: "09:00", Channels: ChannelSet{ChannelApp}},
		{Frequency: FrequencyDaily, TimeOfDay: "24:00", Channels: ChannelSet{ChannelApp}},
		{Frequency: FrequencyDaily, TimeOfDay: "09:00"},
		{Frequency: FrequencyDaily, TimeOfDay: "09:00", Channels: ChannelSet{"fax"}},
		{Frequency: FrequencyDaily, TimeOfDay: "09:00", Channels: ChannelSet{ChannelApp}, Eligibility: Eligibility{MinimumBalance: ptrF(-1)}},
		{Frequency: FrequencyDaily, TimeOfDay: "09:00", Channels: ChannelSet{ChannelApp}, Cascade: Cascade{OffsetsDays: []int{14, 7}}},
	}
	for i, cfg := range bad {
		err := cfg.Validate()
		if !errors.Is(err, ErrConfigInvalid) {
			t.Fatalf("case %d: want ErrConfigInvalid, got %v", i, err)
		}
	}
}

func TestChannelSetDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want ChannelSet
	}{
		{`"both"`, ChannelSet{ChannelChatBot, ChannelShareSheet}},
		{`"telegram"`, ChannelSet{ChannelChatBot}},
		{`["whatsapp","app","app"]`, ChannelSet{ChannelShareSheet, ChannelApp}},
	}
	for _, tc := range cases {
		var got ChannelSet
		if err := json.Unmarshal([]byte(tc.in), &got); err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.in, got, tc.want)
		}
	}

	ordered := ChannelSet{ChannelShareSheet, ChannelApp}.Ordered()
	if !reflect.DeepEqual(ordered, []Channel{ChannelApp, ChannelShareSheet}) {
		t.Fatalf("ordered: %v", ordered)
	}

	var s ChannelSet
	if err := json.Unmarshal([]byte(`["sms"]`), &s); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}
