package services

import (
	"sort"

	"github.com/charlesng35/classdesk/internal/models"
)

// DuplicateCluster groups attachments that share identical content.
type DuplicateCluster struct {
	SHA256        string   `json:"sha256"`
	Count         int      `json:"count"`
	AttachmentIDs []string `json:"attachment_ids"`
	SubmissionIDs []string `json:"submission_ids"`
}

// FindDuplicates groups attachments by fingerprint and returns the groups
// with more than one member, largest first and then by fingerprint.
func FindDuplicates(attachments []models.SubmissionAttachment) []DuplicateCluster {
	groups := make(map[string]*DuplicateCluster)
	for _, attachment := range attachments {
		if attachment.SHA256 == "" {
			continue
		}
		cluster, ok := groups[attachment.SHA256]
		if !ok {
			cluster = &DuplicateCluster{SHA256: attachment.SHA256}
			groups[attachment.SHA256] = cluster
		}
		cluster.Count++
		cluster.AttachmentIDs = append(cluster.AttachmentIDs, attachment.ID)
		cluster.SubmissionIDs = append(cluster.SubmissionIDs, attachment.SubmissionID)
	}

	clusters := make([]DuplicateCluster, 0)
	for _, cluster := range groups {
		if cluster.Count > 1 {
			clusters = append(clusters, *cluster)
		}
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Count != clusters[j].Count {
			return clusters[i].Count > clusters[j].Count
		}
		return clusters[i].SHA256 < clusters[j].SHA256
	})
	return clusters
}
