package delivery

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"0812-3456-789", "628123456789"},
		{"+62 812 3456", "628123456"},
		{"(021) 555 01", "6221555" + "01"},
		{"628123", "628123"},
		{"", ""},
		{"n/a", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in, "62"); got != tc.want {
			t.Fatalf("NormalizePhone(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestShareURLs(t *testing.T) {
	t.Parallel()

	sc := ShareConfig{}.withDefaults()
	got := sc.WebURL("62812", "Halo Budi & co: Rp 1.000")
	want := "https://api.whatsapp.com/send?phone=62812&text=Halo%20Budi%20%26%20co%3A%20Rp%201.000"
	if got != want {
		t.Fatalf("got %q", got)
	}
	if got := sc.AppURL("1", "a b"); got != "whatsapp://send?phone=1&text=a%20b" {
		t.Fatalf("app url %q", got)
	}
}

func TestValidChatID(t *testing.T) {
	t.Parallel()

	for id, want := range map[string]bool{"123": true, "-1001": true, "abc123": false, "": false, "12a": false, "+5": false, "--1": false} {
		if ValidChatID(id) != want {
			t.Fatalf("ValidChatID(%q) != %v", id, want)
		}
	}
}
