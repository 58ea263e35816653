package conceptset

// Concept is a row of the OMOP concept table.
type Concept struct {
	ConceptID    int64  `db:"concept_id" json:"concept_id"`
	ConceptName  string `db:"concept_name" json:"concept_name"`
	VocabularyID string `db:"vocabulary_id" json:"vocabulary_id"`
}

// ConceptSet is a row of the code_sets table. Version is 0 when the source
// row carries no version.
type ConceptSet struct {
	CodesetID      int64  `db:"codeset_id" json:"codeset_id"`
	ConceptSetName string `db:"concept_set_name" json:"concept_set_name"`
	Version        int    `db:"version" json:"version"`
}

// MembershipRow is a denormalized concept_set_members row. The name columns
// repeat the concept and code_sets labels and are not checked against them.
type MembershipRow struct {
	CodesetID      int64  `db:"codeset_id" json:"codeset_id"`
	ConceptID      int64  `db:"concept_id" json:"concept_id"`
	ConceptName    string `db:"concept_name" json:"concept_name"`
	ConceptSetName string `db:"concept_set_name" json:"concept_set_name"`
}

// AncestorEdge is a row of the concept_ancestor transitive closure. A
// separation of 0 is the self-identity row.
type AncestorEdge struct {
	AncestorConceptID     int64 `db:"ancestor_concept_id" json:"ancestor_concept_id"`
	DescendantConceptID   int64 `db:"descendant_concept_id" json:"descendant_concept_id"`
	MinLevelsOfSeparation int   `db:"min_levels_of_separation" json:"min_levels_of_separation"`
}

// RelationshipEdge is a row of concept_relationship. For "Subsumes" rows
// ConceptID1 is the parent of ConceptID2.
type RelationshipEdge struct {
	ConceptID1     int64  `db:"concept_id_1" json:"concept_id_1"`
	ConceptID2     int64  `db:"concept_id_2" json:"concept_id_2"`
	RelationshipID string `db:"relationship_id" json:"relationship_id"`
}

// RelationshipSubsumes is the only relationship_id used for hierarchy building.
const RelationshipSubsumes = "Subsumes"

// Tables is the raw content of the five reference tables as read by a Loader.
type Tables struct {
	Concepts      []Concept
	ConceptSets   []ConceptSet
	Members       []MembershipRow
	Ancestors     []AncestorEdge
	Relationships []RelationshipEdge
}

// CodesetRecord is a code_sets record together with its member concepts, as
// returned by concept-sets-with-concepts.
type CodesetRecord struct {
	CodesetID      int64                   `json:"codeset_id"`
	ConceptSetName string                  `json:"concept_set_name"`
	Version        int                     `json:"version"`
	Concepts       map[int64]MembershipRow `json:"concepts"`
}

// ConceptRecord is a member concept together with the requested concept sets
// that contain it, as returned by concept-sets-by-concept.
type ConceptRecord struct {
	MembershipRow
	ConceptSets []int64 `json:"concept_sets"`
}

// ConceptsByConcept is the concept-sets-by-concept response.
type ConceptsByConcept struct {
	Concepts    map[int64]*ConceptRecord `json:"concepts"`
	ConceptSets map[int64]*CodesetRecord `json:"concept_sets"`
}

// CsetVersion is one entry of the cset-versions listing.
type CsetVersion struct {
	Version   int   `json:"version"`
	CodesetID int64 `json:"codeset_id"`
}

// HierarchyAgainRow is a hierarchy-again output row.
type HierarchyAgainRow struct {
	Lvl  int    `json:"lvl"`
	Cid  int64  `json:"cid"`
	Name string `json:"name"`
}

// Output formats accepted by cr-hierarchy.
const (
	FormatDefault = "default"
	FormatXO      = "xo"
)
