package requests

import "crms/internal/domain/request"

// Resolver resolves reference ids to display names.
type Resolver interface {
	Resolve(kind request.LookupKind, id string) request.Resolution
}

// TableResolver is a fixed in-memory Resolver keyed by kind then id.
type TableResolver map[request.LookupKind]map[string]string

func (t TableResolver) Resolve(kind request.LookupKind, id string) request.Resolution {
	name, ok := t[kind][id]
	if !ok {
		return request.NotFound()
	}
	return request.Resolved(name)
}

// Rebuild joins every raw request against resolver. It allocates a fresh
// slice and never mutates raw. Subcategories are entries of the category table.
func Rebuild(raw []request.RawRequest, resolver Resolver) []request.ProjectedRequest {
	out := make([]request.ProjectedRequest, 0, len(raw))
	for _, item := range raw {
		out = append(out, Project(item, resolver))
	}
	return out
}

func Project(item request.RawRequest, resolver Resolver) request.ProjectedRequest {
	return request.ProjectedRequest{
		RawRequest:      item,
		BuildingName:    resolver.Resolve(request.LookupBuilding, item.BuildingID).NameOr(request.UnknownBuilding),
		RoomName:        resolver.Resolve(request.LookupRoom, item.RoomID).NameOr(request.UnknownRoom),
		CategoryName:    resolver.Resolve(request.LookupCategory, item.CategoryID).NameOr(request.UnknownCategory),
		SubcategoryName: resolver.Resolve(request.LookupCategory, item.SubcategoryID).NameOr(request.UnknownSubcategory),
	}
}
