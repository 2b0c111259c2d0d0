package protocol

import "testing"

func TestParseCommands(t *testing.T) {
	allow := []string{"/dev/video0", "/dev/video2"}

	tests := []struct {
		chunk string
		want  []Command
	}{
		{"/dev/video2", []Command{SwitchCamera("/dev/video2")}},
		{"  /dev/video0\r\n", []Command{SwitchCamera("/dev/video0")}},
		{"path-not-in-allowlist", []Command{{Kind: CommandUnknown, Arg: "path-not-in-allowlist"}}},
		{"/dev/video0\n/dev/video2\n", []Command{SwitchCamera("/dev/video0"), SwitchCamera("/dev/video2")}},
		{"/dev/video1\n\n/dev/video2", []Command{{Kind: CommandUnknown, Arg: "/dev/video1"}, SwitchCamera("/dev/video2")}},
		{"\n \n", nil},
	}
	for _, tt := range tests {
		got := ParseCommands([]byte(tt.chunk), allow)
		if len(got) != len(tt.want) {
			t.Fatalf("%q: got %v, want %v", tt.chunk, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%q: command %d = %+v, want %+v", tt.chunk, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCommandEncodeParses(t *testing.T) {
	allow := []string{"/dev/video2"}
	got := ParseCommands(SwitchCamera("/dev/video2").Encode(), allow)
	if len(got) != 1 || got[0].Kind != CommandSwitchCamera || got[0].Arg != "/dev/video2" {
		t.Fatalf("got %+v", got)
	}
}

func TestCommandBufferJoinsSplitReads(t *testing.T) {
	allow := []string{"/dev/video1", "/dev/video10", "/dev/video2"}

	tests := []struct {
		name   string
		chunks []string
		want   []Command
		flush  []Command
	}{
		{
			name:   "byte at a time",
			chunks: []string{"/", "dev/", "vid", "eo2", "\n"},
			want:   []Command{SwitchCamera("/dev/video2")},
		},
		{
			name:   "prefix of a longer entry waits for its newline",
			chunks: []string{"/dev/video1", "0\n/dev/video1", "\n"},
			want:   []Command{SwitchCamera("/dev/video10"), SwitchCamera("/dev/video1")},
		},
		{
			name:   "unterminated tail flushed at the end",
			chunks: []string{"/dev/video1"},
			flush:  []Command{SwitchCamera("/dev/video1")},
		},
		{
			name:   "unknown text split across reads",
			chunks: []string{"/dev/vid", "eo9\n"},
			want:   []Command{{Kind: CommandUnknown, Arg: "/dev/video9"}},
		},
	}
	for _, tt := range tests {
		b := NewCommandBuffer(allow)
		var got []Command
		for _, c := range tt.chunks {
			got = append(got, b.Feed([]byte(c))...)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%s: command %d = %+v, want %+v", tt.name, i, got[i], tt.want[i])
			}
		}
		flushed := b.Flush()
		if len(flushed) != len(tt.flush) {
			t.Fatalf("%s: flushed %v, want %v", tt.name, flushed, tt.flush)
		}
		for i := range flushed {
			if flushed[i] != tt.flush[i] {
				t.Fatalf("%s: flushed %d = %+v, want %+v", tt.name, i, flushed[i], tt.flush[i])
			}
		}
	}
}
