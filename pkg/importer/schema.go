package importer

// collectionSchema is the subset of the Postman v2.1 collection schema the
// importer relies on. Items are only checked for being objects so that one
// malformed item is reported on its own instead of rejecting the file.
const collectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["info", "item"],
  "properties": {
    "info": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "schema": {"type": "string"}
      }
    },
    "item": {
      "type": "array",
      "items": {"type": "object"}
    },
    "event": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "listen": {"type": "string"},
          "script": {"type": "object"}
        }
      }
    },
    "variable": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "key": {"type": "string"},
          "disabled": {"type": "boolean"}
        }
      }
    }
  }
}`
