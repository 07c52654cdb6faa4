package model

import "testing"

func TestKindForExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want FileKind
	}{
		{".jpg", KindImage},
		{"JPG", KindImage},
		{".MP4", KindVideo},
		{".docx", KindDocument},
		{".txt", KindDocument},
		{".flac", KindAudio},
		{".7z", KindArchive},
		{".apk", KindApp},
		{".exe", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			if got := KindForExtension(tt.ext); got != tt.want {
				t.Errorf("KindForExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestKindForName(t *testing.T) {
	if got := KindForName("/sdcard/DCIM/Camera/IMG_0001.JPEG"); got != KindImage {
		t.Errorf("KindForName() = %q, want %q", got, KindImage)
	}
	if got := KindForName("README"); got != KindOther {
		t.Errorf("KindForName() = %q, want %q", got, KindOther)
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := map[string]string{
		"jpg":    ".jpg",
		".PNG":   ".png",
		" .Mp3 ": ".mp3",
		"":       "",
	}
	for in, want := range tests {
		if got := NormalizeExtension(in); got != want {
			t.Errorf("NormalizeExtension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileRecord_SizeMB(t *testing.T) {
	f := &FileRecord{SizeBytes: 3 * BytesPerMB / 2}
	if got := f.SizeMB(); got != 1.5 {
		t.Errorf("SizeMB() = %v, want 1.5", got)
	}
}
