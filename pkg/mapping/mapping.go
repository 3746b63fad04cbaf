// Package mapping holds the declarative description of which Salesforce
// objects are synced into which Airtable tables, and how their fields map.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidMapping is wrapped by every validation failure
var ErrInvalidMapping = errors.New("invalid mapping")

// Config is the full sync configuration: the target base and the objects to
// sync, in the order they run.
type Config struct {
	BaseID  string          `yaml:"baseId"`
	Objects []ObjectMapping `yaml:"objects"`
}

// ObjectMapping describes how one Salesforce object maps onto one Airtable table.
type ObjectMapping struct {
	// Object is the Salesforce sObject name, e.g. Opportunity
	Object string `yaml:"object"`
	// Table is the Airtable table receiving the records
	Table string `yaml:"table"`
	// PrimaryAirtableField is the Airtable field holding the Salesforce key
	PrimaryAirtableField string `yaml:"primaryAirtableField"`
	// PrimarySalesforceField is the unique Salesforce field, usually Id
	PrimarySalesforceField string `yaml:"primarySalesforceField"`
	// WhereClause is a SOQL condition without the WHERE keyword
	WhereClause string `yaml:"whereClause"`
	// ReturnField values are handed to the next object as a filter
	ReturnField string `yaml:"returnField"`
	// FilterField is the field of this object matched against the previous
	// object's return values
	FilterField string `yaml:"filterField"`
	// Fields maps Salesforce field names to Airtable field names
	Fields map[string]string `yaml:"fields"`
}

// SourceFields returns the mapped Salesforce fields in sorted order
func (o ObjectMapping) SourceFields() []string {
	fields := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

func (o ObjectMapping) HasReturnField() bool {
	return o.ReturnField != ""
}

// Validate checks a single object mapping
func (o ObjectMapping) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: object %q: %s", ErrInvalidMapping, o.Object, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(o.Object) == "" {
		return fmt.Errorf("%w: object name is required", ErrInvalidMapping)
	}
	if o.Table == "" {
		return invalid("table is required")
	}
	if o.PrimaryAirtableField == "" {
		return invalid("primaryAirtableField is required")
	}
	if o.PrimarySalesforceField == "" {
		return invalid("primarySalesforceField is required")
	}
	if len(o.Fields) == 0 {
		return invalid("fields must map at least one field")
	}
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(o.WhereClause)), "WHERE ") {
		return invalid("whereClause must not include the WHERE keyword")
	}

	if _, ok := o.Fields[o.PrimarySalesforceField]; !ok {
		return invalid("primarySalesforceField %q must be one of the mapped fields", o.PrimarySalesforceField)
	}
	if o.HasReturnField() {
		if _, ok := o.Fields[o.ReturnField]; !ok {
			return invalid("returnField %q must be one of the mapped fields", o.ReturnField)
		}
	}

	seen := make(map[string]string, len(o.Fields))
	for source, dest := range o.Fields {
		if source == "" || dest == "" {
			return invalid("field mapping %q -> %q has an empty side", source, dest)
		}
		if other, dup := seen[dest]; dup {
			return invalid("fields %q and %q both map to %q", other, source, dest)
		}
		seen[dest] = source
	}
	if _, ok := seen[o.PrimaryAirtableField]; !ok {
		return invalid("primaryAirtableField %q must be the target of a mapped field", o.PrimaryAirtableField)
	}

	return nil
}

// Validate checks the whole configuration, including how consecutive objects
// chain their return and filter fields.
func (c Config) Validate() error {
	if c.BaseID == "" {
		return fmt.Errorf("%w: baseId is required", ErrInvalidMapping)
	}
	if len(c.Objects) == 0 {
		return fmt.Errorf("%w: at least one object is required", ErrInvalidMapping)
	}

	names := make(map[string]bool, len(c.Objects))
	for i, o := range c.Objects {
		if err := o.Validate(); err != nil {
			return err
		}
		if names[o.Object] {
			return fmt.Errorf("%w: object %q is configured twice", ErrInvalidMapping, o.Object)
		}
		names[o.Object] = true

		if o.FilterField == "" {
			continue
		}
		if i == 0 {
			return fmt.Errorf("%w: object %q: the first object cannot declare a filterField", ErrInvalidMapping, o.Object)
		}
		if prev := c.Objects[i-1]; !prev.HasReturnField() {
			return fmt.Errorf("%w: object %q declares filterField %q but %q has no returnField",
				ErrInvalidMapping, o.Object, o.FilterField, prev.Object)
		}
	}
	return nil
}
