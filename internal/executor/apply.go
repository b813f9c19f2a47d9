package executor

import (
	"context"
	"fmt"
	"strings"

	"reckon/internal/entity"
	"reckon/internal/kgstore"
	"reckon/internal/logging"
	"reckon/internal/staging"
)

func (e *Executor) applyMerge(ctx context.Context, op *staging.Operation, dryRun bool) Result {
	result := Result{OpID: op.ID, Action: entity.ActionMerge, EntityPath: op.TargetPath}
	if op.TargetPath == "" {
		result.Err = "no target path for merge"
		return result
	}
	candidate, err := op.Candidate()
	if err != nil {
		result.Err = err.Error()
		return result
	}

	target, err := e.store.ReadEntity(ctx, op.TargetPath)
	if err != nil {
		result.Err = fmt.Sprintf("read target: %v", err)
		return result
	}

	merged := mergeFields(target, candidate)
	if dryRun {
		result.Success = true
		return result
	}
	if err := e.writeAndIndex(ctx, op.TargetPath, merged); err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *Executor) applyUpdate(ctx context.Context, op *staging.Operation, dryRun bool) Result {
	result := Result{OpID: op.ID, Action: entity.ActionUpdate, EntityPath: op.TargetPath}
	if op.TargetPath == "" {
		result.Err = "no target path for update"
		return result
	}
	candidate, err := op.Candidate()
	if err != nil {
		result.Err = err.Error()
		return result
	}

	target, err := e.store.ReadEntity(ctx, op.TargetPath)
	if err != nil {
		result.Err = fmt.Sprintf("read target: %v", err)
		return result
	}

	updated := updateFields(target, candidate)
	if dryRun {
		result.Success = true
		return result
	}
	if err := e.writeAndIndex(ctx, op.TargetPath, updated); err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *Executor) applyCreate(ctx context.Context, op *staging.Operation, dryRun bool) Result {
	result := Result{OpID: op.ID, Action: entity.ActionCreate}
	candidate, err := op.Candidate()
	if err != nil {
		result.Err = err.Error()
		return result
	}
	if strings.TrimSpace(candidate.Name) == "" {
		result.Err = "no entity name provided"
		return result
	}

	entityType := candidate.Type
	if entityType == "" && len(e.graph.EntityTypes) > 0 {
		entityType = e.graph.EntityTypes[0]
	}
	if !contains(e.graph.EntityTypes, entityType) {
		result.Err = fmt.Sprintf("unknown entity type: %s", entityType)
		return result
	}

	tier := candidate.Tier
	if tier == "" {
		tier = e.inferTier(candidate)
	}
	if tier != "" && !contains(e.graph.Tiers, tier) {
		result.Err = fmt.Sprintf("unknown tier: %s", tier)
		return result
	}

	id := entity.NormalizeID(candidate.Name)
	path := entityType + "/" + id
	if tier != "" {
		path = entityType + "/" + tier + "/" + id
	}
	result.EntityPath = path

	exists, err := e.store.Exists(ctx, path)
	if err != nil {
		result.Err = fmt.Sprintf("check existing entity: %v", err)
		return result
	}
	if exists {
		// Racing creates must fail loudly instead of silently overwriting.
		result.Err = fmt.Sprintf("entity already exists: %s", path)
		return result
	}
	if dryRun {
		result.Success = true
		return result
	}

	now := kgstore.Now()
	fields := kgstore.Fields{
		Name:     candidate.Name,
		Type:     entityType,
		Tier:     tier,
		Industry: candidate.Industry,
		Aliases:  dedupeFold(nil, candidate.Aliases...),
		Contacts: dedupeContacts(nil, candidate.Contacts),
		Sources:  []string{"reckon-pipeline-" + now},
		Created:  now,
		Updated:  now,
	}
	if err := e.writeAndIndex(ctx, path, fields); err != nil {
		result.Err = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (e *Executor) writeAndIndex(ctx context.Context, path string, fields kgstore.Fields) error {
	if err := e.store.WriteEntity(ctx, path, fields); err != nil {
		return fmt.Errorf("write entity: %w", err)
	}
	if e.index == nil {
		return nil
	}
	if err := e.index.Upsert(ctx, path, fields); err != nil {
		// The write already landed; a stale index heals on the next rebuild.
		e.logger.Warn("index upsert failed",
			logging.String("path", path),
			logging.Error(err))
	}
	return nil
}

// inferTier places low-confidence entities in the low-confidence tier and
// everything else in the default tier, when the graph uses tiers at all.
func (e *Executor) inferTier(candidate entity.Candidate) string {
	if len(e.graph.Tiers) == 0 {
		return ""
	}
	if candidate.Confidence > 0 && candidate.Confidence < 0.6 &&
		contains(e.graph.Tiers, e.graph.LowConfidenceTier) {
		return e.graph.LowConfidenceTier
	}
	if contains(e.graph.Tiers, e.graph.DefaultTier) {
		return e.graph.DefaultTier
	}
	return e.graph.Tiers[0]
}

// mergeFields folds a candidate into an existing entity: the candidate name
// and aliases join the alias set, contacts union by normalized email, and
// sources union verbatim. Existing scalar fields win except where empty.
func mergeFields(target kgstore.Fields, candidate entity.Candidate) kgstore.Fields {
	aliases := candidate.Aliases
	if !strings.EqualFold(candidate.Name, target.Name) {
		aliases = append([]string{candidate.Name}, candidate.Aliases...)
	}
	target.Aliases = dedupeFold(target.Aliases, aliases...)
	target.Contacts = dedupeContacts(target.Contacts, candidate.Contacts)
	if candidate.SourceID != "" {
		target.Sources = dedupeFold(target.Sources, candidate.SourceID)
	}
	if target.Industry == "" {
		target.Industry = candidate.Industry
	}
	target.Updated = kgstore.Now()
	return target
}

// updateFields overwrites only the fields present and non-empty in the
// candidate; contacts and aliases are appended with dedupe rather than
// replaced so no existing information is lost.
func updateFields(target kgstore.Fields, candidate entity.Candidate) kgstore.Fields {
	if candidate.Industry != "" {
		target.Industry = candidate.Industry
	}
	if candidate.Tier != "" {
		target.Tier = candidate.Tier
	}
	target.Aliases = dedupeFold(target.Aliases, candidate.Aliases...)
	target.Contacts = dedupeContacts(target.Contacts, candidate.Contacts)
	if candidate.SourceID != "" {
		target.Sources = dedupeFold(target.Sources, candidate.SourceID)
	}
	target.Updated = kgstore.Now()
	return target
}

// dedupeFold appends values to existing, deduplicating case-insensitively
// while preserving the original casing of first occurrences.
func dedupeFold(existing []string, values ...string) []string {
	seen := make(map[string]struct{}, len(existing)+len(values))
	out := make([]string, 0, len(existing)+len(values))
	for _, value := range existing {
		key := entity.NormalizeAlias(value)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	for _, value := range values {
		key := entity.NormalizeAlias(value)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

// dedupeContacts unions contact lists keyed by normalized email. Contacts
// without an email are kept, keyed by folded name.
func dedupeContacts(existing []entity.Contact, incoming []entity.Contact) []entity.Contact {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	key := func(contact entity.Contact) string {
		if email := strings.ToLower(strings.TrimSpace(contact.Email)); email != "" {
			return "email:" + email
		}
		return "name:" + entity.NormalizeAlias(contact.Name)
	}
	out := make([]entity.Contact, 0, len(existing)+len(incoming))
	for _, contact := range existing {
		k := key(contact)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, contact)
	}
	for _, contact := range incoming {
		k := key(contact)
		if k == "email:" || k == "name:" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, contact)
	}
	return out
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, value) {
			return true
		}
	}
	return false
}
