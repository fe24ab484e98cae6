package annotations

// AuthenticatedUserRole is the synthetic role assigned to restrictions whose
// "to" clause is absent: any authenticated caller matches it.
const AuthenticatedUserRole = "authenticated-user"

// ResolveRestrictions normalizes heterogeneous @restrict/@requires
// declarations into a uniform restriction list. A requires role comes first
// as an unconditional entry; each raw restriction is then expanded in
// declaration order, roles in "to"-list order. Returns an empty list (allow
// all) when neither input is present.
func ResolveRestrictions(raw any, requires string) []Restriction {
	restrictions := []Restriction{}

	if requires != "" {
		restrictions = append(restrictions, Restriction{Role: requires})
	}

	entries, _ := raw.([]any)
	for _, entry := range entries {
		restrict, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		roles := stringList(restrict["to"])
		if len(roles) == 0 {
			roles = []string{AuthenticatedUserRole}
		}

		grants := stringList(restrict["grant"])
		if len(grants) == 0 {
			grants = []string{""}
		}

		for _, role := range roles {
			for _, grant := range grants {
				restrictions = append(restrictions, Restriction{
					Role:       role,
					Operations: mapGrant(grant),
				})
			}
		}
	}

	return restrictions
}

// mapGrant expands a grant keyword into its operation set. Empty and "*"
// grants expand to all four operations; unrecognized keywords pass through
// unchanged as a single operation.
func mapGrant(grant string) []Operation {
	switch grant {
	case "", "*":
		return AllOperations()
	case "CHANGE":
		return []Operation{OpUpdate}
	case "WRITE":
		return []Operation{OpCreate, OpUpdate, OpDelete}
	default:
		return []Operation{Operation(grant)}
	}
}

// stringList accepts a scalar string or a list of strings and returns a
// normalized slice. Anything else yields nil.
func stringList(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
