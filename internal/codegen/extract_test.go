package codegen

import "testing"

func TestExtract(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "delimited",
			reply: "Sure!\n<startCode>\nfig = px.bar(df, x=\"country\", y=\"revenue\")\nfig\n<endCode>\nEnjoy.",
			want:  "fig = px.bar(df, x=\"country\", y=\"revenue\")\nfig",
		},
		{
			name:  "no markers",
			reply: "print(len(df))",
			want:  "print(len(df))",
		},
		{
			name:  "start without end",
			reply: "<startCode> df.head()",
			want:  "<startCode> df.head()",
		},
		{
			name:  "end before start",
			reply: "<endCode> x <startCode> y",
			want:  "<endCode> x <startCode> y",
		},
		{
			name:  "first pair wins",
			reply: "<startCode>a<endCode><startCode>b<endCode>",
			want:  "a",
		},
		{
			name:  "fenced block",
			reply: "<startCode>\n```python\ndf.count()\n```\n<endCode>",
			want:  "df.count()",
		},
		{
			name:  "bare fence",
			reply: "<startCode>```\nlen(df)```<endCode>",
			want:  "len(df)",
		},
		{
			name:  "one-line tagged fence",
			reply: "<startCode>```python x = 1```<endCode>",
			want:  "x = 1",
		},
		{
			name:  "one-line fence starting with an identifier",
			reply: "<startCode>```total = df.revenue.sum()```<endCode>",
			want:  "total = df.revenue.sum()",
		},
		{
			name:  "one-line fence",
			reply: "<startCode>```len(df)```<endCode>",
			want:  "len(df)",
		},
		{
			name:  "opening fence only",
			reply: "<startCode>```python\ndf.count()<endCode>",
			want:  "```python\ndf.count()",
		},
		{
			name:  "code on the fence line",
			reply: "<startCode>```x = 1\nx```<endCode>",
			want:  "x = 1\nx",
		},
		{
			name:  "empty block",
			reply: "<startCode><endCode>",
			want:  "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Extract(tc.reply, "<startCode>", "<endCode>"); got != tc.want {
				t.Fatalf("Extract() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractEmptyMarkers(t *testing.T) {
	if got := Extract("abc", "", "<endCode>"); got != "abc" {
		t.Fatalf("Extract() = %q", got)
	}
}
