package query

import (
	"strings"

	"github.com/google/uuid"
)

// Cache keys shared by every consumer of the same resource.
const (
	KeyCampaigns  = "aura_campaigns"
	KeyBrainVoice = "aura_brain_voice"
	KeyBrainFiles = "aura_brain_files"
	KeyProfile    = "aura_profile"

	campaignPrefix        = "aura_campaign_"
	campaignContentPrefix = "aura_campaign_content_"
	assetsPrefix          = "aura_assets_"
	contentPrefix         = "aura_content_"
)

// CampaignKey caches a single campaign.
func CampaignKey(id string) string { return campaignPrefix + id }

// CampaignContentKey caches the generated content attached to a campaign.
func CampaignContentKey(id string) string { return campaignContentPrefix + id }

// AssetsKey caches one asset table: products, audiences or experts.
func AssetsKey(kind string) string { return assetsPrefix + kind }

// ContentKey caches the generated content of one type.
func ContentKey(kind string) string { return contentPrefix + kind }

// family strips a trailing UUID so metric attributes stay low-cardinality.
func family(key string) string {
	i := strings.LastIndexByte(key, '_')
	if i < 0 || i == len(key)-1 {
		return key
	}
	if _, err := uuid.Parse(key[i+1:]); err == nil {
		return key[:i]
	}
	return key
}
