package mailtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tags and entities",
			in:   `<p>Total:&nbsp;<b>$42.50</b></p><p>Merchant: Tom &amp; Jerry&#39;s</p>`,
			want: "Total: $42.50\nMerchant: Tom & Jerry's",
		},
		{
			name: "style and script dropped",
			in:   `<style>.a{color:red}</style><div>Paid</div><script>var x = 1;</script>`,
			want: "Paid",
		},
		{
			name: "br becomes newline",
			in:   "Item: Coffee<br/>Amount: $3.00",
			want: "Item: Coffee\nAmount: $3.00",
		},
		{
			name: "whitespace collapsed",
			in:   "<td>  Order   </td>\n\n\n<td>#123</td>",
			want: "Order\n#123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripHTML(tt.in))
		})
	}
}

func TestBody(t *testing.T) {
	assert.Equal(t, "Paid $5.00", Body("<p>Paid $5.00</p>", "ignored"))
	assert.Equal(t, "line one\nline two", Body("  ", "line  one\r\n\r\nline two\r\n"))
	assert.Empty(t, Body("", ""))
}
