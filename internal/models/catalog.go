// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package models

// Source system labels stored in lms.*.SourceSystem and used as descriptor
// code values and namespace suffixes.
const (
	SourceSchoology = "Schoology"
	SourceCanvas    = "Canvas"
	SourceClassroom = "Google"
	SourceEdFi      = "EdFi"
)

// LMS snapshot identity columns.
const (
	SourceSystemIdentifierColumn = "SourceSystemIdentifier"
	SourceSystemColumn           = "SourceSystem"
)

// lmsIdentity is shared by every lms.* resource.
var lmsIdentity = []string{SourceSystemIdentifierColumn, SourceSystemColumn}

func lmsColumns(attrs ...Column) []Column {
	cols := []Column{
		{SourceSystemIdentifierColumn, TypeText},
		{SourceSystemColumn, TypeText},
	}
	cols = append(cols, attrs...)
	return append(cols,
		Column{"SourceCreateDate", TypeTimestamp},
		Column{"SourceLastModifiedDate", TypeTimestamp},
		Column{DeletedAtColumn, TypeTimestamp},
	)
}

// LMSSection is lms.LMSSection. EdFiSectionId links to edfi.Section.Id.
var LMSSection = &Resource{
	Name:   "LMSSection",
	Schema: "lms",
	Columns: lmsColumns(
		Column{"SISSectionIdentifier", TypeText},
		Column{"Title", TypeText},
		Column{"SectionDescription", TypeText},
		Column{"Term", TypeText},
		Column{"LMSSectionStatus", TypeText},
	),
	IdentityColumns: lmsIdentity,
	LinkColumns:     []Column{{"EdFiSectionId", TypeText}},
}

// LMSUser is lms.LMSUser. EdFiStudentId links to edfi.Student.Id.
var LMSUser = &Resource{
	Name:   "LMSUser",
	Schema: "lms",
	Columns: lmsColumns(
		Column{"UserRole", TypeText},
		Column{"SISUserIdentifier", TypeText},
		Column{"LocalUserIdentifier", TypeText},
		Column{"Name", TypeText},
		Column{"EmailAddress", TypeText},
	),
	IdentityColumns: lmsIdentity,
	LinkColumns:     []Column{{"EdFiStudentId", TypeText}},
}

// Assignment is lms.Assignment.
var Assignment = &Resource{
	Name:   "Assignment",
	Schema: "lms",
	Columns: lmsColumns(
		Column{"LMSSectionSourceSystemIdentifier", TypeText},
		Column{"Title", TypeText},
		Column{"AssignmentCategory", TypeText},
		Column{"AssignmentDescription", TypeText},
		Column{"StartDateTime", TypeTimestamp},
		Column{"EndDateTime", TypeTimestamp},
		Column{"DueDateTime", TypeTimestamp},
		Column{"MaxPoints", TypeDouble},
	),
	IdentityColumns: lmsIdentity,
}

// AssignmentSubmission is lms.AssignmentSubmission.
var AssignmentSubmission = &Resource{
	Name:   "AssignmentSubmission",
	Schema: "lms",
	Columns: lmsColumns(
		Column{"AssignmentSourceSystemIdentifier", TypeText},
		Column{"LMSUserSourceSystemIdentifier", TypeText},
		Column{"SubmissionStatus", TypeText},
		Column{"SubmissionDateTime", TypeTimestamp},
		Column{"EarnedPoints", TypeDouble},
		Column{"Grade", TypeText},
	),
	IdentityColumns: lmsIdentity,
}

// EdFiStudent is edfi.Student, keyed by the ODS resource id.
var EdFiStudent = &Resource{
	Name:   "Student",
	Schema: "edfi",
	Columns: []Column{
		{"Id", TypeText},
		{"StudentUniqueId", TypeText},
		{"FirstName", TypeText},
		{"LastSurname", TypeText},
		{DeletedAtColumn, TypeTimestamp},
	},
	IdentityColumns: []string{"Id"},
}

// EdFiStudentElectronicMail is edfi.StudentElectronicMail.
var EdFiStudentElectronicMail = &Resource{
	Name:   "StudentElectronicMail",
	Schema: "edfi",
	Columns: []Column{
		{"StudentUniqueId", TypeText},
		{"ElectronicMailAddress", TypeText},
		{"ElectronicMailType", TypeText},
		{DeletedAtColumn, TypeTimestamp},
	},
	IdentityColumns: []string{"StudentUniqueId", "ElectronicMailAddress"},
}

// EdFiSection is edfi.Section, keyed by the ODS resource id.
var EdFiSection = &Resource{
	Name:   "Section",
	Schema: "edfi",
	Columns: []Column{
		{"Id", TypeText},
		{"SectionIdentifier", TypeText},
		{"LocalCourseCode", TypeText},
		{"SchoolId", TypeInteger},
		{"SchoolYear", TypeInteger},
		{"SessionName", TypeText},
		{DeletedAtColumn, TypeTimestamp},
	},
	IdentityColumns: []string{"Id"},
}

// LMSResources lists the lms.* resources in sync dependency order.
func LMSResources() []*Resource {
	return []*Resource{LMSSection, LMSUser, Assignment, AssignmentSubmission}
}

// EdFiResources lists the edfi.* resources in sync order.
func EdFiResources() []*Resource {
	return []*Resource{EdFiStudent, EdFiStudentElectronicMail, EdFiSection}
}

// Catalog returns every snapshot resource.
func Catalog() []*Resource {
	return append(EdFiResources(), LMSResources()...)
}

// ResourceByName finds a catalog resource by table or bare name.
func ResourceByName(name string) (*Resource, bool) {
	for _, r := range Catalog() {
		if r.Table() == name || r.Name == name {
			return r, true
		}
	}
	return nil, false
}
