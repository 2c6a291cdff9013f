package domain

import "testing"

func TestHumanReadableBytes(t *testing.T) {
	cases := []struct {
		value int64
		want  string
	}{
		{0, "0 Bytes"},
		{1, "1 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KiB"},
		{1024 * 35, "35 KiB"},
		{1024*35 + 512, "35.5 KiB"},
		{1024 * 1024, "1 MiB"},
		{5*1024*1024*1024 + 200*1024*1024, "5.2 GiB"},
		{-1024 * 35, "-35 KiB"},
		{-1, "-1 Bytes"},
	}
	for _, c := range cases {
		if got := HumanReadable(ResourceUnitBytes, c.value); got != c.want {
			t.Errorf("HumanReadable(bytes, %d) = %q, want %q", c.value, got, c.want)
		}
	}
}

func TestHumanReadableMilliseconds(t *testing.T) {
	cases := []struct {
		value int64
		want  string
	}{
		{0, "0s"},
		{999, "0s"},
		{1000, "1s"},
		{1000*60*7 + 1000*40, "7m 40s"},
		{1000 * 60 * 60, "1h"},
		{1000*60*60*3 + 1000*60*2 + 1000*5, "3h 2m 5s"},
		{1000 * 60 * 60 * 25, "25h"},
		{-35000, "-35s"},
		{-1000*60*60 - 1000*30, "-1h 30s"},
	}
	for _, c := range cases {
		if got := HumanReadable(ResourceUnitMilliseconds, c.value); got != c.want {
			t.Errorf("HumanReadable(milliseconds, %d) = %q, want %q", c.value, got, c.want)
		}
	}
}
