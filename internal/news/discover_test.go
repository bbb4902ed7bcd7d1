package news

import "testing"

func TestIsFeedDocument(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{name: "rss content type", contentType: "application/rss+xml; charset=UTF-8", want: true},
		{name: "atom content type", contentType: "application/atom+xml", want: true},
		{name: "generic xml with rss root", contentType: "text/xml", body: `<?xml version="1.0"?><rss version="2.0">`, want: true},
		{name: "generic xml with atom root", contentType: "application/xml", body: `<feed xmlns="http://www.w3.org/2005/Atom">`, want: true},
		{name: "generic xml other root", contentType: "application/xml", body: `<sitemapindex>`, want: false},
		{name: "missing content type with rss", contentType: "", body: `<rss>`, want: true},
		{name: "html", contentType: "text/html; charset=UTF-8", body: `<html><rss>`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isFeedDocument(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("isFeedDocument(%q) = %v, want %v", tt.contentType, got, tt.want)
			}
		})
	}
}

func TestDiscoverFeedLink(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "wordpress head",
			html: `<html><head>
				<link rel="alternate" type="application/rss+xml" title="سند &raquo; الخلاصة" href="https://sanad.example.org/feed/" />
				<link rel="alternate" type="application/rss+xml" title="سند &raquo; خلاصة التعليقات" href="https://sanad.example.org/comments/feed/" />
			</head><body></body></html>`,
			want: "https://sanad.example.org/feed/",
		},
		{
			name: "relative href",
			html: `<head><link rel="alternate" type="application/atom+xml" href="/feed/atom/"></head>`,
			want: "https://sanad.example.org/feed/atom/",
		},
		{
			name: "same host preferred",
			html: `<head>
				<link rel="alternate" type="application/rss+xml" href="https://feeds.other.example/sanad">
				<link rel="alternate" type="application/rss+xml" href="https://sanad.example.org/feed/">
			</head>`,
			want: "https://sanad.example.org/feed/",
		},
		{
			name: "other host fallback",
			html: `<head><link rel="alternate" type="application/rss+xml" href="https://feeds.other.example/sanad"></head>`,
			want: "https://feeds.other.example/sanad",
		},
		{
			name: "ignores non feed alternates",
			html: `<head><link rel="alternate" type="application/json" href="/wp-json/wp/v2/pages/2"></head>`,
			want: "",
		},
		{
			name: "ignores links in body",
			html: `<head></head><body><link rel="alternate" type="application/rss+xml" href="/feed/"></body>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := discoverFeedLink([]byte(tt.html), "https://sanad.example.org/news/"); got != tt.want {
				t.Errorf("discoverFeedLink() = %q, want %q", got, tt.want)
			}
		})
	}
}
