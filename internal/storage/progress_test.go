package storage

import "testing"

func TestProgressReaderAccumulates(t *testing.T) {
	var got [][2]int64
	p := newProgressReader(10, func(sent, total int64) {
		got = append(got, [2]int64{sent, total})
	})

	for _, n := range []int{4, 4, 4} {
		read, err := p.Read(make([]byte, n))
		if err != nil || read != n {
			t.Fatalf("Read(%d) = %d, %v", n, read, err)
		}
	}
	if _, err := p.Read(nil); err != nil {
		t.Fatalf("Read(nil) error = %v", err)
	}

	want := [][2]int64{{4, 10}, {8, 10}, {10, 10}}
	if len(got) != len(want) {
		t.Fatalf("callbacks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("callback %d = %v, want %v", i, got[i], want[i])
		}
	}
}
