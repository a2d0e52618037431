// Package knowledge implements the item store: PostgreSQL-backed CRUD and
// filtered listing of the user's knowledge items (notes, links, insights).
//
// Filtering supports substring matching on title/content (ILIKE), exact type
// matching, and pattern matching against any stored tag. Results are always
// ordered newest-first; ranking beyond recency is deliberately out of scope.
package knowledge
