package csw

import "github.com/iziplay/csw-harvester/pkg/tree"

// Paths are written with the usual ISO 19139 prefixes. Traversal falls back
// to the local name, so the same table serves prefixed and stripped trees.
var (
	identification = tree.MustParsePath("gmd:identificationInfo/gmd:MD_DataIdentification|srv:SV_ServiceIdentification")
	citation       = identification.Concat(tree.MustParsePath("gmd:citation/gmd:CI_Citation"))
	extent         = identification.Concat(tree.MustParsePath("gmd:extent|srv:extent/gmd:EX_Extent"))
	boundingBox    = extent.Concat(tree.MustParsePath("gmd:geographicElement/gmd:EX_GeographicBoundingBox"))
	timePeriod     = extent.Concat(tree.MustParsePath("gmd:temporalElement/gmd:EX_TemporalExtent/gmd:extent/gml:TimePeriod"))
	distribution   = tree.MustParsePath("gmd:distributionInfo/gmd:MD_Distribution")
)

var (
	pathID                 = tree.MustParsePath("gmd:fileIdentifier/gco:CharacterString")
	pathLanguage           = tree.MustParsePath("gmd:language/gmd:LanguageCode")
	pathLanguageCode       = tree.MustParsePath("gmd:language/gmd:LanguageCode/@_codeListValue")
	pathLanguageString     = tree.MustParsePath("gmd:language/gco:CharacterString")
	pathParentIdentifier   = tree.MustParsePath("gmd:parentIdentifier/gco:CharacterString")
	pathHierarchyLevel     = tree.MustParsePath("gmd:hierarchyLevel/gmd:MD_ScopeCode")
	pathHierarchyLevelCode = tree.MustParsePath("gmd:hierarchyLevel/gmd:MD_ScopeCode/@_codeListValue")
	pathHierarchyLevelName = tree.MustParsePath("gmd:hierarchyLevelName/gco:CharacterString")
	pathDateStamp          = tree.MustParsePath("gmd:dateStamp/gco:DateTime|gco:Date")
	pathSRID               = tree.MustParsePath("gmd:referenceSystemInfo/gmd:MD_ReferenceSystem/gmd:referenceSystemIdentifier/gmd:RS_Identifier/gmd:code/gmx:Anchor|gco:CharacterString")

	pathAbstract          = identification.Concat(tree.MustParsePath("gmd:abstract/gco:CharacterString"))
	pathPurpose           = identification.Concat(tree.MustParsePath("gmd:purpose/gco:CharacterString"))
	pathCategory          = identification.Concat(tree.MustParsePath("gmd:topicCategory/gmd:MD_TopicCategoryCode"))
	pathSpatialResolution = identification.Concat(tree.MustParsePath("gmd:spatialResolution/gmd:MD_Resolution/gmd:equivalentScale/gmd:MD_RepresentativeFraction/gmd:denominator/gco:Integer"))
	pathSpatialType       = identification.Concat(tree.MustParsePath("gmd:spatialRepresentationType/gmd:MD_SpatialRepresentationTypeCode/@_codeListValue"))

	pathTitle          = citation.Concat(tree.MustParsePath("gmd:title/gco:CharacterString|gmx:Anchor"))
	pathAlternateTitle = citation.Concat(tree.MustParsePath("gmd:alternateTitle/gco:CharacterString|gmx:Anchor"))
	pathEdition        = citation.Concat(tree.MustParsePath("gmd:edition/gco:CharacterString"))
	pathDates          = citation.Join(tree.Key("gmd:date"))

	pathGeographicDescription = extent.Concat(tree.MustParsePath("gmd:geographicElement/gmd:EX_GeographicDescription/gmd:geographicIdentifier/gmd:MD_Identifier/gmd:code/gco:CharacterString|gmx:Anchor"))
	pathExtentDescription     = extent.Concat(tree.MustParsePath("gmd:description/gco:CharacterString"))
	pathWest                  = boundingBox.Concat(tree.MustParsePath("gmd:westBoundLongitude/gco:Decimal"))
	pathEast                  = boundingBox.Concat(tree.MustParsePath("gmd:eastBoundLongitude/gco:Decimal"))
	pathSouth                 = boundingBox.Concat(tree.MustParsePath("gmd:southBoundLatitude/gco:Decimal"))
	pathNorth                 = boundingBox.Concat(tree.MustParsePath("gmd:northBoundLatitude/gco:Decimal"))

	pathTemporalStart             = timePeriod.Join(tree.Key("gml:beginPosition"))
	pathTemporalStartUndetermined = timePeriod.Concat(tree.MustParsePath("gml:beginPosition/@_indeterminatePosition"))
	pathTemporalEnd               = timePeriod.Join(tree.Key("gml:endPosition"))
	pathTemporalEndUndetermined   = timePeriod.Concat(tree.MustParsePath("gml:endPosition/@_indeterminatePosition"))

	pathTransferOptions     = distribution.Join(tree.Key("gmd:transferOptions"))
	pathDistributionFormat  = distribution.Concat(tree.MustParsePath("gmd:distributionFormat/gmd:MD_Format/gmd:name/gco:CharacterString|gmx:Anchor"))
	pathDistributorFormat   = distribution.Concat(tree.MustParsePath("gmd:distributor/gmd:MD_Distributor/gmd:distributorFormat/gmd:MD_Format/gmd:name/gco:CharacterString|gmx:Anchor"))
	pathPointOfContact      = identification.Join(tree.Key("gmd:pointOfContact"))
	pathContact             = tree.Keys("gmd:contact")
	pathDescriptiveKeywords = identification.Join(tree.Key("gmd:descriptiveKeywords"))
	pathResourceConstraints = identification.Join(tree.Key("gmd:resourceConstraints"))
)

// relative to one gmd:transferOptions element
var (
	onlineResource = tree.MustParsePath("gmd:MD_DigitalTransferOptions/gmd:onLine/gmd:CI_OnlineResource")

	pathResourceURL                = onlineResource.Concat(tree.MustParsePath("gmd:linkage/gmd:URL"))
	pathResourceApplicationProfile = onlineResource.Concat(tree.MustParsePath("gmd:applicationProfile/gco:CharacterString"))
	pathResourceName               = onlineResource.Concat(tree.MustParsePath("gmd:name/gco:CharacterString|gmx:Anchor"))
	pathResourceDescription        = onlineResource.Concat(tree.MustParsePath("gmd:description/gco:CharacterString"))
	pathResourceFunction           = onlineResource.Concat(tree.MustParsePath("gmd:function/gmd:CI_OnLineFunctionCode/@_codeListValue"))
	pathResourceProtocol           = onlineResource.Concat(tree.MustParsePath("gmd:protocol/gco:CharacterString|gmx:Anchor"))
)

// relative to one gmd:date element of a citation
var (
	pathDateValue = tree.MustParsePath("gmd:CI_Date/gmd:date/gco:DateTime|gco:Date")
	pathDateType  = tree.MustParsePath("gmd:CI_Date/gmd:dateType/gmd:CI_DateTypeCode/@_codeListValue")
)

// relative to one gmd:descriptiveKeywords element
var (
	pathKeywordName   = tree.MustParsePath("gmd:MD_Keywords/gmd:keyword/gco:CharacterString|gmx:Anchor")
	pathKeywordAnchor = tree.MustParsePath("gmd:MD_Keywords/gmd:keyword/gmx:Anchor/@_xlink:href")
	pathKeywordType   = tree.MustParsePath("gmd:MD_Keywords/gmd:type/gmd:MD_KeywordTypeCode/@_codeListValue")
)

// relative to one gmd:pointOfContact or gmd:contact element
var (
	party   = tree.Keys("gmd:CI_ResponsibleParty")
	contact = party.Concat(tree.MustParsePath("gmd:contactInfo/gmd:CI_Contact"))
	address = contact.Concat(tree.MustParsePath("gmd:address/gmd:CI_Address"))

	pathContactType           = party.Concat(tree.MustParsePath("gmd:role/gmd:CI_RoleCode/@_codeListValue"))
	pathContactName           = party.Concat(tree.MustParsePath("gmd:organisationName/gco:CharacterString|gmx:Anchor"))
	pathContactIndividualName = party.Concat(tree.MustParsePath("gmd:individualName/gco:CharacterString"))
	pathContactPosition       = party.Concat(tree.MustParsePath("gmd:positionName/gco:CharacterString"))
	pathContactID             = party.Join(tree.Key("@_uuid"))
	pathContactPhone          = contact.Concat(tree.MustParsePath("gmd:phone/gmd:CI_Telephone/gmd:voice/gco:CharacterString"))
	pathContactFax            = contact.Concat(tree.MustParsePath("gmd:phone/gmd:CI_Telephone/gmd:facsimile/gco:CharacterString"))
	pathContactURL            = contact.Concat(tree.MustParsePath("gmd:onlineResource/gmd:CI_OnlineResource/gmd:linkage/gmd:URL"))
	pathContactEmail          = address.Concat(tree.MustParsePath("gmd:electronicMailAddress/gco:CharacterString"))
	pathContactDeliveryPoint  = address.Concat(tree.MustParsePath("gmd:deliveryPoint/gco:CharacterString"))
	pathContactCity           = address.Concat(tree.MustParsePath("gmd:city/gco:CharacterString"))
	pathContactAdminArea      = address.Concat(tree.MustParsePath("gmd:administrativeArea/gco:CharacterString"))
	pathContactPostcode       = address.Concat(tree.MustParsePath("gmd:postalCode/gco:CharacterString"))
	pathContactCountry        = address.Concat(tree.MustParsePath("gmd:country/gco:CharacterString"))
)

// relative to one gmd:resourceConstraints element
var (
	constraints = tree.Path{tree.AnyOf("gmd:MD_LegalConstraints", "gmd:MD_Constraints", "gmd:MD_SecurityConstraints")}

	constraintPaths = []struct {
		kind ConstraintType
		path tree.Path
	}{
		{ConstraintUseLimitation, constraints.Concat(tree.MustParsePath("gmd:useLimitation/gco:CharacterString|gmx:Anchor"))},
		{ConstraintUseConstraints, constraints.Concat(tree.MustParsePath("gmd:useConstraints/gmd:MD_RestrictionCode/@_codeListValue"))},
		{ConstraintOtherConstraints, constraints.Concat(tree.MustParsePath("gmd:otherConstraints/gco:CharacterString|gmx:Anchor"))},
		{ConstraintAccessConstraints, constraints.Concat(tree.MustParsePath("gmd:accessConstraints/gmd:MD_RestrictionCode/@_codeListValue"))},
	}
)
