package chat

import (
	"strings"
	"testing"
)

func TestSendCommandValidate(t *testing.T) {
	tests := []struct {
		name    string
		cmd     SendCommand
		wantErr bool
	}{
		{"valid text", SendCommand{Content: "Hello", RecipientID: "bob", MessageType: TypeText}, false},
		{"valid system", SendCommand{Content: "maintenance at noon", RecipientID: "bob", MessageType: TypeSystem}, false},
		{"empty content", SendCommand{Content: "", RecipientID: "bob", MessageType: TypeText}, true},
		{"whitespace content", SendCommand{Content: "   \t", RecipientID: "bob", MessageType: TypeText}, true},
		{"max length content", SendCommand{Content: strings.Repeat("a", MaxContentChars), RecipientID: "bob", MessageType: TypeText}, false},
		{"over max length", SendCommand{Content: strings.Repeat("a", MaxContentChars+1), RecipientID: "bob", MessageType: TypeText}, true},
		{"multibyte under limit", SendCommand{Content: strings.Repeat("ü", MaxContentChars), RecipientID: "bob", MessageType: TypeText}, false},
		{"invalid utf8", SendCommand{Content: string([]byte{0xff, 0xfe}), RecipientID: "bob", MessageType: TypeText}, true},
		{"empty recipient", SendCommand{Content: "Hello", RecipientID: "", MessageType: TypeText}, true},
		{"blank recipient", SendCommand{Content: "Hello", RecipientID: "  ", MessageType: TypeText}, true},
		{"missing type", SendCommand{Content: "Hello", RecipientID: "bob", MessageType: ""}, true},
		{"unknown type", SendCommand{Content: "Hello", RecipientID: "bob", MessageType: "VOICE"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cmd.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
