package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QueryType represents the type of MongoDB operation
type QueryType string

const (
	InsertOne        QueryType = "insertOne"
	FindOne          QueryType = "findOne"
	FindMany         QueryType = "find"
	FindOneAndUpdate QueryType = "findOneAndUpdate"
	CountDocuments   QueryType = "countDocuments"
)

// GenerateRawQuery generates a MongoDB shell query string from data
// Example: GenerateRawQuery("keys", FindOne, filter)
// Returns: "db.keys.findOne({'exp':{'$gt':1700000000}})"
func GenerateRawQuery(collection string, queryType QueryType, data any) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("db.%s.%s(...)", collection, queryType)
	}
	return fmt.Sprintf("db.%s.%s(%s)", collection, queryType, mongoJSONFormat(string(jsonData)))
}

// GenerateRawQueryWithFilter generates a MongoDB query with a filter and a second argument
// (update document or options).
func GenerateRawQueryWithFilter(collection string, queryType QueryType, filter any, data any) string {
	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return fmt.Sprintf("db.%s.%s(...)", collection, queryType)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("db.%s.%s(...)", collection, queryType)
	}
	return fmt.Sprintf("db.%s.%s(%s, %s)", collection, queryType,
		mongoJSONFormat(string(filterJSON)), mongoJSONFormat(string(dataJSON)))
}

// GenerateSortedFindQuery renders find(filter).sort(sort).limit(limit); limit <= 0 omits the limit.
func GenerateSortedFindQuery(collection string, filter any, sort any, limit int) string {
	base := GenerateRawQuery(collection, FindMany, filter)
	if sortJSON, err := json.Marshal(sort); err == nil {
		base += ".sort(" + mongoJSONFormat(string(sortJSON)) + ")"
	}
	if limit > 0 {
		base += ".limit(" + strconv.Itoa(limit) + ")"
	}
	return base
}

// mongoJSONFormat converts JSON format to MongoDB shell format
func mongoJSONFormat(jsonStr string) string {
	result := strings.ReplaceAll(jsonStr, `"`, `'`)
	result = strings.ReplaceAll(result, `\'`, `'`)
	result = strings.ReplaceAll(result, `\\`, `\`)
	return result
}

func GenerateInsertQuery(collection string, data any) string {
	return GenerateRawQuery(collection, InsertOne, data)
}

func GenerateCountQuery(collection string, filter any) string {
	return GenerateRawQuery(collection, CountDocuments, filter)
}

func GenerateFindOneAndUpdateQuery(collection string, filter any, update any) string {
	return GenerateRawQueryWithFilter(collection, FindOneAndUpdate, filter, update)
}

// GenerateSQLQuery inlines positional "?" arguments into stmt for logging.
// Byte slices are never printed, only their length.
func GenerateSQLQuery(stmt string, vars ...any) string {
	var b strings.Builder
	i := 0
	for _, r := range stmt {
		if r == '?' && i < len(vars) {
			b.WriteString(sqlLiteral(vars[i]))
			i++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<blob %d bytes>", len(val))
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339) + "'"
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", val)
	}
}
