package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flexpertsdev/flexios-v1/internal/models"
)

// Seed fills an empty store with the starter project. It returns the number
// of documents written, which is zero if the store already had content.
func (s *Store) Seed(ctx context.Context) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	docs, err := SeedDocuments()
	if err != nil {
		return 0, err
	}
	if err := s.BulkPut(ctx, docs); err != nil {
		return 0, fmt.Errorf("seed: %w", err)
	}
	return len(docs), nil
}

// SeedDocuments returns the starter project as documents.
func SeedDocuments() ([]models.Document, error) {
	var docs []models.Document
	add := func(key string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal seed %q: %w", key, err)
		}
		docs = append(docs, models.Document{Key: key, Content: string(data)})
		return nil
	}

	for _, f := range seedFeatures {
		if err := add(fmt.Sprintf("features/%d", f.ID), f); err != nil {
			return nil, err
		}
	}
	for _, p := range seedPages {
		if err := add(fmt.Sprintf("pages/%d", p.ID), p); err != nil {
			return nil, err
		}
	}
	for _, d := range seedTables {
		if err := add(fmt.Sprintf("database/%d", d.ID), d); err != nil {
			return nil, err
		}
	}
	for _, d := range seedDocs {
		if err := add(fmt.Sprintf("library/docs/%d", d.ID), d); err != nil {
			return nil, err
		}
	}
	for _, lib := range []struct {
		key string
		v   any
	}{
		{"library/vision", seedVision},
		{"library/roadmap", seedRoadmap},
		{"design/system", map[string]string{"id": "design", "name": "Design System", "type": "design"}},
	} {
		if err := add(lib.key, lib.v); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

var seedFeatures = []models.Feature{
	{ID: 1, Name: "User Authentication", Status: "complete", Priority: "High", Complexity: "High",
		Description:  "Comprehensive auth system for secure user login and registration.",
		Requirements: []string{"Email/password login", "OAuth 2.0 with Google", "Forgot password flow"},
		Dependencies: []string{"Database"}},
	{ID: 2, Name: "Patient Management", Status: "in-progress", Priority: "High", Complexity: "High",
		Description:  "Centralized system for managing patient records and medical history.",
		Requirements: []string{"Patient registration form", "View/edit patient details", "Upload medical documents"},
		Dependencies: []string{"User Authentication"}},
	{ID: 3, Name: "Appointment Booking", Status: "pending", Priority: "Medium", Complexity: "Medium",
		Description:  "Interactive scheduling system for patients and doctors.",
		Requirements: []string{"Calendar view for availability", "Book/cancel appointments", "Automated email reminders"},
		Dependencies: []string{"Patient Management"}},
}

var seedPages = []models.Page{
	{ID: 1, Name: "Dashboard", Features: []int{1, 2}, Database: []int{1, 2}, Type: "Analytics Dashboard"},
	{ID: 2, Name: "Patient List", Features: []int{1, 2}, Database: []int{2}, Type: "Data Table Page"},
	{ID: 3, Name: "Appointments", Features: []int{2, 3}, Database: []int{2, 3}, Type: "Calendar Page"},
}

var seedTables = []models.DatabaseTable{
	{ID: 1, Name: "users", Fields: "8"},
	{ID: 2, Name: "patients", Fields: "12"},
	{ID: 3, Name: "appointments", Fields: "6"},
}

var seedDocs = []models.Documentation{
	{ID: 1, Title: "Getting Started", Description: "Quick start guide for developers",
		Content: "<h2>Welcome!</h2><p>How to set up the development environment and begin contributing.</p>"},
	{ID: 2, Title: "Architecture Overview", Description: "System design and patterns",
		Content: "<h2>Architecture</h2><p>A React front end with a Node.js backend, split into independently deployable features.</p>"},
	{ID: 3, Title: "API Reference", Description: "Complete API documentation",
		Content: "<h2>API</h2><p>RESTful endpoints with request and response examples.</p>"},
}

var seedVision = map[string]any{
	"statement": "Build a comprehensive Hospital Management System that streamlines patient care, reduces administrative burden, and improves healthcare outcomes.",
	"targetUsers": []map[string]string{
		{"emoji": "👨‍⚕️", "title": "Healthcare Providers", "desc": "Doctors, nurses, specialists"},
		{"emoji": "🏥", "title": "Administrative Staff", "desc": "Receptionists, billing, HR"},
		{"emoji": "🤒", "title": "Patients", "desc": "Portal access and bookings"},
	},
}

var seedRoadmap = []map[string]any{
	{"id": 1, "name": "Phase 1: Core Infrastructure", "status": "Completed", "progress": 100,
		"items": []string{"User authentication system", "Database schema design", "API foundation"}},
	{"id": 2, "name": "Phase 2: Patient Management", "status": "In Progress", "progress": 65,
		"items": []string{"Patient registration", "Medical records", "Search and filtering"}},
	{"id": 3, "name": "Phase 3: Appointments & Scheduling", "status": "Planned", "progress": 0,
		"items": []string{"Calendar integration", "Appointment booking", "Automated reminders"}},
}
