// Package article fetches Medium article pages with authenticated,
// browser-like requests and recovers their readable title and body through
// layered selector strategies.
package article
