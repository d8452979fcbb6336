package csw

import "github.com/iziplay/csw-harvester/pkg/tree"

// MapRecord builds a Record from one gmd:MD_Metadata node. Missing or
// malformed parts of the node only leave the matching fields empty.
func MapRecord(n tree.Node) Record {
	return Record{
		ID:                 tree.GetFirst(simple(n, pathID)).String(),
		LanguageCode:       tree.FirstOf(simple(n, pathLanguage), simple(n, pathLanguageCode), simple(n, pathLanguageString)),
		ParentIdentifier:   simple(n, pathParentIdentifier),
		HierarchyLevel:     tree.FirstOf(simple(n, pathHierarchyLevel), simple(n, pathHierarchyLevelCode)),
		HierarchyLevelName: simple(n, pathHierarchyLevelName),
		DateStamp:          simple(n, pathDateStamp),
		Abstract:           simple(n, pathAbstract),
		Purpose:            simple(n, pathPurpose),
		Edition:            simple(n, pathEdition),
		SRID:               simple(n, pathSRID),
		Title:              simple(n, pathTitle),
		AlternateTitle:     simple(n, pathAlternateTitle),
		Category:           simple(n, pathCategory),
		SpatialResolution:  simple(n, pathSpatialResolution),
		SpatialType:        simple(n, pathSpatialType),

		GeographicDescription: simple(n, pathGeographicDescription),
		TemporalExtent: TemporalExtent{
			Start:             simple(n, pathTemporalStart),
			StartUndetermined: simple(n, pathTemporalStartUndetermined),
			End:               simple(n, pathTemporalEnd),
			EndUndetermined:   simple(n, pathTemporalEndUndetermined),
		},
		SpatialExtent: SpatialExtent{
			Longitude:   pair(simple(n, pathWest), simple(n, pathEast)),
			Latitude:    pair(simple(n, pathSouth), simple(n, pathNorth)),
			Description: simple(n, pathExtentDescription),
		},

		Resources:     mapResources(n),
		Dates:         mapDates(n),
		Keywords:      mapKeywords(n),
		Organisations: mapContacts(n),
		Constraints:   mapConstraints(n),
	}
}

// MapRecords maps every element of a repeating MD_Metadata node
func MapRecords(n tree.Node) []Record {
	items := elements(n)
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, MapRecord(item))
	}
	return records
}

// simple traverses and flattens a single-valued field. A result without any
// scalar left (e.g. an element holding only attributes) counts as absent.
func simple(n tree.Node, p tree.Path) tree.Value {
	v := tree.OnlySimple(tree.Traverse(n, p))
	if len(v) == 0 {
		return nil
	}
	return v
}

// positional traverses a field repeated inside a child element, keeping
// nulls so that sibling fields zip by index
func positional(n tree.Node, p tree.Path) tree.Value {
	v := tree.OnlySimple(tree.TraverseNulls(n, p))
	if len(v) == 0 {
		return nil
	}
	return v
}

// pair builds a [min, max] coordinate pair from two bounding box sides
func pair(low, high tree.Value) tree.Value {
	a, b := tree.GetFirst(low), tree.GetFirst(high)
	if a.IsNull() && b.IsNull() {
		return nil
	}
	return tree.Value{a, b}
}

// elements returns the items of a repeating node without the null entries.
// A single non-array node counts as one element.
func elements(n tree.Node) []tree.Node {
	if n.IsNull() {
		return nil
	}
	if !n.IsArray() {
		return []tree.Node{n}
	}
	var out []tree.Node
	for _, item := range n.Items() {
		if !item.IsNull() {
			out = append(out, item)
		}
	}
	return out
}

func mapResources(n tree.Node) []Resource {
	format := tree.FirstOf(simple(n, pathDistributionFormat), simple(n, pathDistributorFormat))

	var resources []Resource
	for _, el := range elements(tree.Traverse(n, pathTransferOptions)) {
		resources = append(resources, Resource{
			DistributionFormat: format,
			URL:                positional(el, pathResourceURL),
			ApplicationProfile: positional(el, pathResourceApplicationProfile),
			Name:               positional(el, pathResourceName),
			Description:        positional(el, pathResourceDescription),
			Function:           positional(el, pathResourceFunction),
			Protocol:           positional(el, pathResourceProtocol),
		})
	}
	return resources
}

func mapDates(n tree.Node) []Date {
	var dates []Date
	for _, el := range elements(tree.Traverse(n, pathDates)) {
		dates = append(dates, Date{
			Date: simple(el, pathDateValue),
			Type: simple(el, pathDateType),
		})
	}
	return dates
}

func mapKeywords(n tree.Node) []Keyword {
	var keywords []Keyword
	for _, el := range elements(tree.Traverse(n, pathDescriptiveKeywords)) {
		keywords = append(keywords, Keyword{
			Name:   positional(el, pathKeywordName),
			Type:   simple(el, pathKeywordType),
			Anchor: positional(el, pathKeywordAnchor),
		})
	}
	return keywords
}

func mapContacts(n tree.Node) []Contact {
	parties := append(elements(tree.Traverse(n, pathPointOfContact)), elements(tree.Traverse(n, pathContact))...)

	var contacts []Contact
	for _, el := range parties {
		contacts = append(contacts, Contact{
			Type:           simple(el, pathContactType),
			Name:           simple(el, pathContactName),
			IndividualName: simple(el, pathContactIndividualName),
			Position:       simple(el, pathContactPosition),
			Phone:          simple(el, pathContactPhone),
			Fax:            simple(el, pathContactFax),
			URL:            simple(el, pathContactURL),
			Email:          simple(el, pathContactEmail),
			DeliveryPoint:  simple(el, pathContactDeliveryPoint),
			City:           simple(el, pathContactCity),
			AdminArea:      simple(el, pathContactAdminArea),
			Postcode:       simple(el, pathContactPostcode),
			Country:        simple(el, pathContactCountry),
			ID:             simple(el, pathContactID),
		})
	}
	return contacts
}

func mapConstraints(n tree.Node) []Constraint {
	var out []Constraint
	for _, el := range elements(tree.Traverse(n, pathResourceConstraints)) {
		for _, c := range constraintPaths {
			v := tree.ClearNulls(simple(el, c.path))
			if len(v) == 0 {
				continue
			}
			out = append(out, Constraint{Type: c.kind, Value: v})
		}
	}
	return out
}
