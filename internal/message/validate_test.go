package message

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		attachments []Attachment
		wantErr     bool
	}{
		{name: "plain text", content: "hello", wantErr: false},
		{name: "empty", content: "", wantErr: true},
		{name: "attachment only", attachments: []Attachment{{URL: "https://cdn/x.png"}}, wantErr: false},
		{name: "attachment without url", attachments: []Attachment{{Filename: "x.png"}}, wantErr: true},
		{name: "over byte limit", content: strings.Repeat("a", MaxContentBytes+1), wantErr: true},
		{name: "over char limit", content: strings.Repeat("é", MaxContentChars+1), wantErr: true},
		{name: "invalid utf8", content: string([]byte{0xff, 0xfe}), wantErr: true},
		{name: "multibyte within limits", content: strings.Repeat("日", 100), wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.content, tt.attachments)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
