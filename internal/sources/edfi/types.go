// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package edfi

import "strings"

type student struct {
	ID              string `json:"id"`
	StudentUniqueID string `json:"studentUniqueId"`
	FirstName       string `json:"firstName"`
	LastSurname     string `json:"lastSurname"`
}

type section struct {
	ID                      string `json:"id"`
	SectionIdentifier       string `json:"sectionIdentifier"`
	CourseOfferingReference struct {
		LocalCourseCode string `json:"localCourseCode"`
		SchoolID        int64  `json:"schoolId"`
		SchoolYear      int64  `json:"schoolYear"`
		SessionName     string `json:"sessionName"`
	} `json:"courseOfferingReference"`
}

type electronicMail struct {
	ElectronicMailAddress        string `json:"electronicMailAddress"`
	ElectronicMailTypeDescriptor string `json:"electronicMailTypeDescriptor"`
}

type educationOrganizationAssociation struct {
	ID               string `json:"id"`
	StudentReference struct {
		StudentUniqueID string `json:"studentUniqueId"`
	} `json:"studentReference"`
	ElectronicMails []electronicMail `json:"electronicMails"`
}

// descriptorCode returns the code value of a descriptor URI such as
// "uri://ed-fi.org/ElectronicMailTypeDescriptor#Work".
func descriptorCode(uri string) string {
	if i := strings.LastIndex(uri, "#"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
