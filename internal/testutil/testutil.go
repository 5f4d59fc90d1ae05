// Package testutil provides test helpers for mailshare tests.
//
//   - assert.go: assertion helpers (MustNoErr, AssertEqualSlices, etc.)
//   - store_helpers.go: database test setup (NewTestStore)
//   - html.go: link extraction from rendered fragments
//   - email: RFC 5322 message builder
//   - storetest: a seeded mail/contact/tag fixture built on the store API
package testutil
