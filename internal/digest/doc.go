// Package digest defines the types, error taxonomy and collaborator interfaces
// shared by every stage of the digest pipeline: payload decoding, link
// extraction, URL normalization, article fetching, summarization and delivery.
package digest
