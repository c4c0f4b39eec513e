package domain

// Actor carries the caller context supplied by the upstream authentication
// gateway. The engine treats the role flags as opaque booleans and never
// re-derives them.
type Actor struct {
	ID          string
	TenantID    string
	IsChampion  bool
	IsSuperUser bool
}
