package hypothesis

// UnknownTimestep marks a detection record without frame information.
const UnknownTimestep = -1

// DetectionRecord is the input form of a segmentation hypothesis. Feature
// fields hold either one vector shared by all states or one per state.
type DetectionRecord struct {
	ID                    ID
	Timestep              int
	Features              StateFeatures
	AppearanceFeatures    StateFeatures
	DisappearanceFeatures StateFeatures
}

// LinkRecord is the input form of a linking hypothesis.
type LinkRecord struct {
	Src, Dest ID
	Features  StateFeatures
}

// DivisionRecord is the input form of a division hypothesis.
type DivisionRecord struct {
	Parent   ID
	Children [2]ID
	Features StateFeatures
}

// ExclusionRecord is the input form of an exclusion group.
type ExclusionRecord struct {
	Members []ID
}

// Graph is the full set of hypothesis records for one model.
type Graph struct {
	Detections []DetectionRecord
	Links      []LinkRecord
	Divisions  []DivisionRecord
	Exclusions []ExclusionRecord
}

// Section names used in RecordError, matching the input file keys.
const (
	SectionDetections = "segmentationHypotheses"
	SectionLinks      = "linkingHypotheses"
	SectionDivisions  = "divisionHypotheses"
	SectionExclusions = "exclusions"

	SectionDetectionResults = "detectionResults"
	SectionLinkResults      = "linkingResults"
	SectionDivisionResults  = "divisionResults"
)
